package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"launchpool/internal/api"
	"launchpool/internal/config"
	"launchpool/internal/engine"
	"launchpool/internal/ledger"
	"launchpool/internal/rail"
	"launchpool/internal/reconcile"
	"launchpool/internal/storage"
	"launchpool/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "launchpool",
		Short:        "Bonding-curve trading engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trading service",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("rpc", "", "payment rail RPC URL (empty disables deposits and withdrawals)")
	serveCmd.Flags().String("token", "", "reserve token contract address")
	serveCmd.Flags().String("vault-key", "", "hex private key of the custody vault")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty disables DB persistence)")
	serveCmd.Flags().String("journal", "./data/trades.jsonl", "trade journal JSONL path")
	serveCmd.Flags().Uint64("min-initial-reserve", 1_0000_0000, "minimum initial reserve for new pools")
	serveCmd.Flags().Uint64("graduation-threshold", 85_0000_0000, "market cap at which pools graduate")
	serveCmd.Flags().Duration("reconcile-interval", 15*time.Second, "deposit reconciliation polling interval")
	serveCmd.Flags().Uint64("from-block", 0, "first rail block to scan for deposits")
	serveCmd.Flags().Uint64("batch-size", 2000, "rail blocks per reconciliation batch")
	serveCmd.Flags().Int("max-retries", 5, "maximum rail retry attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial rail retry backoff")
	serveCmd.Flags().String("checkpoint", "./data/checkpoint.json", "reconciler checkpoint file path")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Scan the payment rail and print matched deposits",
		RunE:  runReconcile,
	}

	reconcileCmd.Flags().String("rpc", "", "payment rail RPC URL")
	reconcileCmd.Flags().String("token", "", "reserve token contract address")
	reconcileCmd.Flags().Uint64("from-block", 0, "start block (inclusive)")
	reconcileCmd.Flags().Uint64("to-block", 0, "end block (inclusive), 0 means latest")
	reconcileCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	reconcileCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	reconcileCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	reconcileCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	reconcileCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reconcileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
	}

	var tradeSink storage.TradeSink
	var poolSink storage.PoolSink
	var depositSink storage.DepositSink
	if store != nil {
		tradeSink, poolSink, depositSink = store, store, store
	} else if cfg.Journal != "" {
		tradeSink = storage.NewJsonlJournal(cfg.Journal)
	}

	balances := ledger.New()

	var railClient *rail.Client
	if cfg.RPCURL != "" {
		if cfg.TokenAddress == "" {
			return fmt.Errorf("token address is required when rpc is set")
		}
		railClient, err = rail.NewClient(ctx, cfg.RPCURL, common.HexToAddress(cfg.TokenAddress), cfg.VaultKey)
		if err != nil {
			return fmt.Errorf("connect rail: %w", err)
		}
		defer railClient.Close()
	}

	engineCfg := engine.Config{
		MinInitialReserve:   cfg.MinInitialReserve,
		GraduationThreshold: cfg.GraduationThreshold,
	}

	var submitter engine.TransferSubmitter
	if railClient != nil {
		submitter = railClient
	}

	eng := engine.New(engineCfg, balances, submitter, tradeSink, poolSink, logger)

	book := rail.NewAddressBook()
	server := api.NewServer(eng, book, logger)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", zap.String("addr", cfg.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if railClient != nil {
		var state reconcile.StateStore
		if store != nil {
			state = postgres.NewStateStore(store, "deposits")
		} else if cfg.Checkpoint != "" {
			state = &reconcile.FileStateStore{Path: cfg.Checkpoint}
		}

		reconciler := reconcile.New(reconcile.Config{
			FromBlock:    cfg.FromBlock,
			BatchSize:    cfg.BatchSize,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Interval:     cfg.ReconcileInterval,
		}, railClient, book, reconcile.NewDepositStore(balances), state, depositSink, logger)

		go func() {
			if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reconciler stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("payment rail disabled: deposits and withdrawals unavailable")
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	railClient, err := rail.NewClient(ctx, cfg.RPCURL, common.HexToAddress(cfg.TokenAddress), "")
	if err != nil {
		return fmt.Errorf("connect rail: %w", err)
	}
	defer railClient.Close()

	from := cfg.FromBlock
	to := cfg.ToBlock
	if to == 0 {
		to, err = railClient.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}

	ranges, err := reconcile.SplitRange(from, to, cfg.BatchSize)
	if err != nil {
		return err
	}

	total := 0
	for _, blockRange := range ranges {
		transfers, err := railClient.ReserveTransfers(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("fetch transfers %d-%d: %w", blockRange.From, blockRange.To, err)
		}
		for _, transfer := range transfers {
			total++
			fmt.Printf("%s block=%d to=%s amount=%d\n", transfer.DedupKey(), transfer.BlockNumber, transfer.To.Hex(), transfer.Amount)
		}
	}

	logger.Info("scan complete",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("transfers", total),
	)
	return nil
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
