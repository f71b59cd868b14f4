package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fundService/internal/chain"
	"fundService/internal/config"
	"fundService/internal/fundtoken"
)

type balanceOutput struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// readOnlyGateway connects to the contract without a signer.
func readOnlyGateway(cmd *cobra.Command) (*fundtoken.Gateway, func(), error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	chainClient, err := chain.NewClient(cmd.Context(), cfg.RPCURL)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	cleanup := func() {
		chainClient.Close()
		_ = logger.Sync()
	}

	gateway, err := fundtoken.NewGateway(fundtoken.Config{
		Contract: common.HexToAddress(cfg.ContractAddress),
	}, chainClient, nil, logger.Named("fundtoken"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Debug("read-only gateway ready", zap.String("rpc", cfg.RPCURL), zap.String("contract", cfg.ContractAddress))
	return gateway, cleanup, nil
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	gateway, cleanup, err := readOnlyGateway(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := gateway.GetFundMetrics(ctx)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	gateway, cleanup, err := readOnlyGateway(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	balance, err := gateway.GetBalance(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(balanceOutput{Address: args[0], Balance: balance.String()})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
