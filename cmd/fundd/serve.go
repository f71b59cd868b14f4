package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fundService/internal/api"
	"fundService/internal/cache"
	"fundService/internal/chain"
	"fundService/internal/config"
	"fundService/internal/fund"
	"fundService/internal/fundtoken"
	"fundService/internal/metrics"
	"fundService/internal/retry"
	"fundService/internal/storage"
	"fundService/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var chainID *big.Int
	err = retry.Do(ctx, startupPolicy(cfg, logger, "rpc"), func(ctx context.Context) error {
		id, err := chainClient.ChainID(ctx)
		if err != nil {
			return err
		}
		chainID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	signer, err := chain.NewSigner(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}

	gateway, err := fundtoken.NewGateway(fundtoken.Config{
		Contract:       common.HexToAddress(cfg.ContractAddress),
		ChainID:        chainID,
		ReceiptTimeout: cfg.ReceiptTimeout,
	}, chainClient, signer, logger.Named("fundtoken"))
	if err != nil {
		return err
	}

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	err = retry.Do(ctx, startupPolicy(cfg, logger, "postgres"), func(ctx context.Context) error {
		err := store.Ping(ctx)
		var pgErr *pgconn.PgError
		// Bad credentials or a missing database will not fix themselves.
		if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "28") || pgErr.Code == "3D000") {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	metricsCache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collectorSet := metrics.New(registry)

	svc, err := fund.NewService(fund.Config{
		MetricsTTL: cfg.CacheTTL,
		Serialize:  cfg.SerializeOperations,
	}, gateway, metricsCache, store, logger.Named("fund"))
	if err != nil {
		return err
	}
	svc.WithMetrics(collectorSet)
	if cfg.UnreconciledPath != "" {
		svc.WithJournal(storage.NewJsonlJournal(cfg.UnreconciledPath))
	}

	router := api.NewRouter(svc, api.Options{
		Logger:   logger.Named("http"),
		Metrics:  collectorSet,
		Gatherer: registry,
		Head:     chainClient.LatestBlockNumber,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("fund service start",
		zap.Int("port", cfg.Port),
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.String("contract", cfg.ContractAddress),
		zap.String("signer", signer.Address().Hex()),
		zap.String("database_url", redactDSN(cfg.DatabaseURL)),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Bool("serialize_operations", cfg.SerializeOperations),
		zap.String("unreconciled_path", cfg.UnreconciledPath),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("fund service shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}
		cancel()
	}

	// Handlers that outlived Shutdown may still be waiting on a receipt; the
	// ledger and cache must stay open until they record the outcome.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ReceiptTimeout+shutdownTimeout)
	defer cancel()
	if err := svc.Wait(drainCtx); err != nil {
		logger.Error("in-flight fund operations did not finish", zap.Error(err))
		if serveErr == nil {
			serveErr = fmt.Errorf("drain operations: %w", err)
		}
	}
	return serveErr
}

func startupPolicy(cfg config.Config, logger *zap.Logger, dependency string) retry.Policy {
	return retry.Policy{
		Retries:   cfg.StartupRetries,
		BaseDelay: cfg.StartupBackoff,
		MaxDelay:  10 * time.Second,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("startup check failed",
				zap.String("dependency", dependency),
				zap.Int("attempt", attempt),
				zap.Duration("next_delay", delay),
				zap.Error(err),
			)
		},
	}
}

func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Cache, func(), error) {
	if cfg.CacheBackend == "memory" {
		logger.Warn("using in-process metrics cache; entries are not shared across instances")
		return cache.NewMemoryCache(), func() {}, nil
	}

	redisCache, err := cache.NewRedisCache(cache.RedisConfig{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Username: cfg.CacheUsername,
		Password: cfg.CachePassword,
		DB:       cfg.CacheDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open redis: %w", err)
	}
	err = retry.Do(ctx, startupPolicy(cfg, logger, "redis"), redisCache.Ping)
	if err != nil {
		_ = redisCache.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return redisCache, func() { _ = redisCache.Close() }, nil
}
