package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"expensetracker/internal/amqp"
	"expensetracker/internal/backend"
	"expensetracker/internal/cli"
	"expensetracker/internal/core"
	apphttp "expensetracker/internal/http"
	applog "expensetracker/internal/log"
	"expensetracker/internal/seed"
	"expensetracker/internal/storage"
	"expensetracker/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// openBackend opens the configured backend and seeds demo data when asked to.
func openBackend(ctx context.Context) (*backend.BackendResult, error) {
	res, err := cli.InitBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.SeedDemoData {
		if _, err := seed.Run(ctx, res.Service, res.Engine.Now(), cfg.DefaultCurrency); err != nil {
			_ = res.Cleanup()
			return nil, err
		}
	}
	return res, nil
}

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				cfg.Port = port
			}

			res, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					logger.Error("Backend cleanup failed", "error", err)
				}
			}()

			srv := apphttp.NewServer(":"+cfg.Port, res.Service, res.Engine,
				apphttp.WithLogger(logger),
				apphttp.WithCacheCleanup(res.Cache, cfg.CacheTTL))

			ctx, done := cli.GracefulShutdown(cmd.Context(), logger, shutdownTimeout, srv.Shutdown)
			syncDone := startSyncWorker(ctx, res)

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.ListenAndServe() }()
			logger.Info("Starting expensetracker server",
				"port", cfg.Port,
				"backend", cfg.DataBackend,
				"amqp_enabled", cfg.AMQPEnabled())

			select {
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve on port %s: %w", cfg.Port, err)
				}
			case <-ctx.Done():
			}
			<-done
			<-syncDone
			logger.Info("Server stopped gracefully")
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

// startSyncWorker follows change events from other processes when AMQP is
// configured. The returned channel closes once the worker has stopped.
func startSyncWorker(ctx context.Context, res *backend.BackendResult) <-chan struct{} {
	done := make(chan struct{})
	if !cfg.AMQPEnabled() {
		close(done)
		return done
	}

	syncLogger := logger.WithComponent(applog.ComponentWorker)
	sub, err := amqp.NewSubscriber(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		syncLogger.Warn("Cross-process sync disabled", "error", err)
		close(done)
		return done
	}

	w := worker.NewSyncWorker(res.Service.Store(), sub, res.Service.EventSource(),
		worker.WithLogger(syncLogger.Logger))
	go func() {
		defer close(done)
		defer sub.Close()
		_ = w.Run(ctx)
	}()
	syncLogger.Info("Following transaction events", "queue", sub.QueueName())
	return done
}

func summaryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the spending summary for the trailing week",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			s, err := res.Engine.Summary(ctx)
			if err != nil {
				return fmt.Errorf("compute summary: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			return cli.RenderSummary(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		category string
		days     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			var f storage.Filter
			if category != "" {
				if f.Category, err = core.ParseCategory(category); err != nil {
					return err
				}
			}
			if days > 0 {
				now := res.Engine.Now()
				y, m, d := now.AddDate(0, 0, 1-days).Date()
				f.From = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
			}

			txs, err := res.Service.List(ctx, f)
			if err != nil {
				return err
			}
			return cli.RenderTransactions(cmd.OutOrStdout(), txs)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category (e.g. FOOD)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "only the last N calendar days, today included")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo dataset once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := cli.InitBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			inserted, err := seed.Run(ctx, res.Service, res.Engine.Now(), cfg.DefaultCurrency)
			if err != nil {
				return err
			}
			if inserted {
				fmt.Fprintln(cmd.OutOrStdout(), "Demo data loaded.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Demo data was already loaded.")
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if backend.BackendType(cfg.DataBackend) != backend.SQLiteBackend {
				fmt.Fprintf(cmd.OutOrStdout(), "The %s backend has no schema to migrate.\n", cfg.DataBackend)
				return nil
			}
			if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
				return err
			}
			logger.Info("Migrations applied", "path", cfg.SQLiteDBPath)
			return nil
		},
	}
}

// eventsCmd tails change events on a private queue, printing one JSON line
// per event. Consumers of the shared queue are unaffected.
func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print transaction change events from AMQP as they arrive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cfg.AMQPEnabled() {
				return errors.New("AMQP_URL is not set")
			}

			client, err := amqp.NewSubscriber(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()

			eventsLogger := logger.WithComponent(applog.ComponentAMQP)
			eventsLogger.Info("Listening for transaction events",
				"exchange", cfg.AMQPExchange,
				"routing_key", cfg.AMQPQueue,
				"queue", client.QueueName())

			out := json.NewEncoder(cmd.OutOrStdout())
			err = client.ConsumeTransactionEvents(cmd.Context(), func(ev amqp.TransactionEvent) error {
				return out.Encode(ev)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
