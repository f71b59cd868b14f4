package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultRPCURL = "https://ethereum-holesky-rpc.publicnode.com"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Port                int
	DatabaseURL         string
	RPCURL              string
	ContractAddress     string
	PrivateKey          string
	CacheBackend        string
	CacheHost           string
	CachePort           int
	CacheUsername       string
	CachePassword       string
	CacheDB             int
	CacheTTL            time.Duration
	ReceiptTimeout      time.Duration
	SerializeOperations bool
	UnreconciledPath    string
	StartupRetries      int
	StartupBackoff      time.Duration
	LogLevel            string
}

// envNames maps config keys to the environment variables they are read from.
var envNames = map[string]string{
	"port":                 "PORT",
	"database-url":         "DATABASE_URL",
	"rpc":                  "RPC_URL",
	"contract-address":     "CONTRACT_ADDRESS",
	"private-key":          "PRIVATE_KEY",
	"cache-backend":        "CACHE_BACKEND",
	"cache-host":           "REDIS_HOST",
	"cache-port":           "REDIS_PORT",
	"cache-username":       "REDIS_USERNAME",
	"cache-password":       "REDIS_PASSWORD",
	"cache-db":             "REDIS_DB",
	"cache-ttl":            "CACHE_TTL",
	"receipt-timeout":      "RECEIPT_TIMEOUT",
	"serialize-operations": "SERIALIZE_OPERATIONS",
	"unreconciled-path":    "UNRECONCILED_PATH",
	"startup-retries":      "STARTUP_RETRIES",
	"startup-backoff":      "STARTUP_BACKOFF",
	"log-level":            "LOG_LEVEL",
}

// Load merges a .env file, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetDefault("port", 3000)
	v.SetDefault("database-url", "postgresql://localhost:5432/fund_db")
	v.SetDefault("rpc", defaultRPCURL)
	v.SetDefault("cache-backend", "redis")
	v.SetDefault("cache-host", "localhost")
	v.SetDefault("cache-port", 6379)
	v.SetDefault("cache-ttl", 300*time.Second)
	v.SetDefault("receipt-timeout", 2*time.Minute)
	v.SetDefault("serialize-operations", false)
	v.SetDefault("unreconciled-path", "./data/unreconciled.jsonl")
	v.SetDefault("startup-retries", 5)
	v.SetDefault("startup-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Port:                v.GetInt("port"),
		DatabaseURL:         v.GetString("database-url"),
		RPCURL:              v.GetString("rpc"),
		ContractAddress:     strings.TrimSpace(v.GetString("contract-address")),
		PrivateKey:          strings.TrimSpace(v.GetString("private-key")),
		CacheBackend:        strings.ToLower(v.GetString("cache-backend")),
		CacheHost:           v.GetString("cache-host"),
		CachePort:           v.GetInt("cache-port"),
		CacheUsername:       v.GetString("cache-username"),
		CachePassword:       v.GetString("cache-password"),
		CacheDB:             v.GetInt("cache-db"),
		CacheTTL:            v.GetDuration("cache-ttl"),
		ReceiptTimeout:      v.GetDuration("receipt-timeout"),
		SerializeOperations: v.GetBool("serialize-operations"),
		UnreconciledPath:    v.GetString("unreconciled-path"),
		StartupRetries:      v.GetInt("startup-retries"),
		StartupBackoff:      v.GetDuration("startup-backoff"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings every command needs to reach the contract.
func (c Config) Validate() error {
	if c.ContractAddress == "" {
		return fmt.Errorf("missing required environment variable: CONTRACT_ADDRESS")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address: %s", c.ContractAddress)
	}
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	return nil
}

// ValidateServe checks the additional settings required to run the HTTP server.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("missing required environment variable: PRIVATE_KEY")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	switch c.CacheBackend {
	case "redis":
		if c.CacheHost == "" {
			return fmt.Errorf("redis host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown cache backend %q (want redis or memory)", c.CacheBackend)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt timeout must be positive")
	}
	return nil
}
