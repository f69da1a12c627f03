package cmds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/ledger"
)

type loader func(cmd *cobra.Command) (*app, func(), error)

func runCmd(load loader) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "process due withdrawals until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := load(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				var err error
				if a.cfg.Processor.Mode == config.ModeAsynq {
					err = a.processor.ServeAsynq(ctx, a.cfg.RedisURL)
				} else {
					err = a.processor.Run(ctx)
				}
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownPeriod)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			a.logger.Info("worker launched", "mode", a.cfg.Processor.Mode, "metrics", metricsAddr)
			if err := g.Wait(); err != nil {
				a.logger.Error("worker exit", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100", "prometheus listen address, empty to disable")
	return cmd
}

func tickCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "process due withdrawals once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := load(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := a.processor.Tick(cmd.Context())
			if err != nil {
				return err
			}
			return jsonPrint(cmd, report)
		},
	}
}

func reconcileCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <wallet-id>",
		Short: "check a wallet balance against its ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := load(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := ledger.Reconcile(cmd.Context(), a.stores.Ledger, args[0])
			if err != nil {
				return err
			}
			if err := jsonPrint(cmd, report); err != nil {
				return err
			}
			if !report.Balanced {
				return fmt.Errorf("wallet %s is out of balance", report.WalletID)
			}
			return nil
		},
	}
}
