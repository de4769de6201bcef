package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terencetsy/maillayer-contactsync/internal/api"
	"github.com/terencetsy/maillayer-contactsync/internal/database"
	"github.com/terencetsy/maillayer-contactsync/internal/metrics"
	"github.com/terencetsy/maillayer-contactsync/internal/scheduler"
)

var skipMigrations bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scheduler, job workers and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func init() {
	workerCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	rootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	if !skipMigrations {
		log.Info().Msg("Running database migrations...")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info().Msg("Migrations completed successfully")
	}

	providers, err := a.providers()
	if err != nil {
		return err
	}

	publisher, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer closePublisher(publisher)

	sched := scheduler.New(a.integrations, a.syncs, a.syncService, a.jobs, scheduler.Options{
		Interval:           cfg.SyncInterval,
		Providers:          providers,
		CompletedRetention: cfg.CompletedRetention,
		FailedRetention:    cfg.FailedRetention,
	})

	w := a.newWatcher(publisher)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = api.NewServer(cfg.HTTPAddr, api.NewRouter(api.NewHandler(a.syncService), metrics.Handler()))
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// watcher and scheduler each send exactly once, after ctx is cancelled or on failure
	errChan := make(chan error, 2)
	running := 2
	go func() {
		errChan <- w.Start(ctx)
	}()
	go func() {
		errChan <- sched.Start(ctx)
	}()

	srvErr := make(chan error, 1)
	if srv != nil {
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-srvErr:
		runErr = err
	case err := <-errChan:
		running--
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}
	cancel()

	// Wait for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
	}

	for ; running > 0; running-- {
		select {
		case <-shutdownCtx.Done():
			log.Warn().Msg("Shutdown timeout exceeded")
			running = 0
		case err := <-errChan:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Worker stopped with error")
			}
		}
	}

	log.Info().Msg("Application stopped")
	return runErr
}
