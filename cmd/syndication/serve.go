package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-syndication/httpapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, target, err := openDatabase(driverFlag(), dsnFlag())
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := migrateDatabase(cmd.Context(), client, target); err != nil {
				return err
			}
			fmt.Fprintf(stdout(), "migrations applied (%s)\n", target)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var (
		addr       string
		withWorker bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inbound event and audit HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				logger := a.logs.GetLogger("syndication.http")
				handler, err := httpapi.New(httpapi.Config{
					Dispatcher:      a.runtime.Dispatcher,
					Reader:          a.runtime.Facade,
					SignatureHeader: a.runtime.Config.Delivery.SignatureHeader,
					Gatherer:        prometheus.DefaultGatherer,
					Metrics:         a.runtime.Metrics,
					Logger:          logger,
				})
				if err != nil {
					return err
				}

				workerErr := make(chan error, 1)
				if withWorker {
					go func() { workerErr <- a.runtime.RunWorker(ctx) }()
				}

				srv := &http.Server{
					Addr:              addr,
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()

				logger.Info("listening", "addr", addr, "worker", withWorker)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				if withWorker {
					return <-workerErr
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&withWorker, "worker", false, "also run the job worker and retry schedule")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker and the retry schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				a.logs.GetLogger("syndication.worker").Info("worker started",
					"poll_interval", a.runtime.Config.Jobs.PollInterval,
					"retry_schedule", a.runtime.Config.Retry.Schedule,
				)
				return a.runtime.RunWorker(cmd.Context())
			})
		},
	}
}
