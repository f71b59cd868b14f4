package main

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	root := &cobra.Command{
		Use:          "fundd",
		Short:        "FundToken investment service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fund HTTP API",
		RunE:  runServe,
	}

	addChainFlags(serveCmd.Flags())
	serveCmd.Flags().Int("port", 3000, "HTTP listen port")
	serveCmd.Flags().String("database-url", "", "Postgres connection URL")
	serveCmd.Flags().String("cache-backend", "redis", "metrics cache backend (redis, memory)")
	serveCmd.Flags().String("cache-host", "localhost", "redis host")
	serveCmd.Flags().Int("cache-port", 6379, "redis port")
	serveCmd.Flags().Int("cache-db", 0, "redis database number")
	serveCmd.Flags().Duration("cache-ttl", 300*time.Second, "fund metrics cache TTL")
	serveCmd.Flags().Duration("receipt-timeout", 2*time.Minute, "maximum wait for a transaction receipt")
	serveCmd.Flags().Bool("serialize-operations", false, "run invest and redeem one at a time")
	serveCmd.Flags().String("unreconciled-path", "./data/unreconciled.jsonl", "JSONL file for records the ledger failed to save (empty disables)")
	serveCmd.Flags().Int("startup-retries", 5, "retry attempts for startup dependency checks")
	serveCmd.Flags().Duration("startup-backoff", 500*time.Millisecond, "initial startup retry backoff")

	root.AddCommand(serveCmd)

	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print fund metrics read from the contract",
		RunE:  runMetrics,
	}
	addChainFlags(metricsCmd.Flags())
	root.AddCommand(metricsCmd)

	balanceCmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the share balance of an investor",
		Args:  cobra.ExactArgs(1),
		RunE:  runBalance,
	}
	addChainFlags(balanceCmd.Flags())
	root.AddCommand(balanceCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "Ethereum RPC URL")
	flags.String("contract-address", "", "FundToken contract address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
