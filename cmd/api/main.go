package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletd/internal/bank"
	"github.com/congo-pay/walletd/internal/clock"
	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/infra"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/processor"
	"github.com/congo-pay/walletd/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := infra.Migrate(db); err != nil {
			logger.Error("migrate", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger and queue")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	clk := clock.Real()
	stores := infra.NewStores(db, clk, cfg.Processor.ReclaimAfter)

	srv, err := server.New(cfg, db, cache, stores, clk, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	if cfg.Processor.Embedded {
		go runEmbeddedProcessor(ctx, cfg, stores, clk, logger)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// runEmbeddedProcessor drives scheduled withdrawals inside the API process,
// which is how a single-binary development setup works.
func runEmbeddedProcessor(ctx context.Context, cfg config.Config, stores infra.Stores, clk clock.Clock, logger *slog.Logger) {
	bankClient := bank.New(cfg.Bank.URL, cfg.Bank.Timeout)
	p := processor.New(stores.Queue, stores.Ledger, bankClient, nil, clk, logger, processor.ConfigFrom(cfg))

	var err error
	if cfg.Processor.Mode == config.ModeAsynq {
		err = p.ServeAsynq(ctx, cfg.RedisURL)
	} else {
		err = p.Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("embedded processor stopped", "error", err)
	}
}
