package cmds

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/congo-pay/walletd/internal/bank"
	"github.com/congo-pay/walletd/internal/clock"
	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/infra"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/processor"
)

// app holds everything a subcommand needs.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	stores    infra.Stores
	processor *processor.Processor
}

// opener builds the app from a config file path. The returned cleanup
// releases connections.
type opener func(ctx context.Context, configFile string) (*app, func(), error)

// Execute runs the worker CLI with args.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd(openApp)
	root.SetArgs(args)
	root.SetOut(os.Stdout)
	return root.ExecuteContext(ctx)
}

func newRootCmd(open opener) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "walletd-worker",
		Short:         "scheduled withdrawal processor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file path (defaults to $CONFIG_FILE)")

	load := func(cmd *cobra.Command) (*app, func(), error) {
		return open(cmd.Context(), configFile)
	}

	root.AddCommand(runCmd(load))
	root.AddCommand(tickCmd(load))
	root.AddCommand(reconcileCmd(load))
	return root
}

func openApp(ctx context.Context, configFile string) (*app, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.LogLevel)

	var db *pgxpool.Pool
	cleanup := func() {}
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cleanup = db.Close
		if err := infra.Migrate(db); err != nil {
			cleanup()
			return nil, nil, err
		}
	} else {
		logger.Warn("DATABASE_URL not set, the worker only sees its own in-memory queue")
	}

	clk := clock.Real()
	stores := infra.NewStores(db, clk, cfg.Processor.ReclaimAfter)
	bankClient := bank.New(cfg.Bank.URL, cfg.Bank.Timeout)

	return &app{
		cfg:       cfg,
		logger:    logger,
		stores:    stores,
		processor: processor.New(stores.Queue, stores.Ledger, bankClient, nil, clk, logger, processor.ConfigFrom(cfg)),
	}, cleanup, nil
}

func jsonPrint(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
