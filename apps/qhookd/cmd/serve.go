package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quatton/qhook/pkg/qapi"
	"github.com/quatton/qhook/pkg/qapi/config"
	"github.com/quatton/qhook/pkg/qapi/routes"
	"github.com/quatton/qhook/pkg/qapi/services"
	"github.com/quatton/qhook/pkg/qcron"
	"github.com/quatton/qhook/pkg/qlog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	pruneEntryID    = "qhook_prune"
	pruneSchedule   = "@hourly"
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, job workers and recurring schedules",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.ValidateEnv()
	if err != nil {
		return err
	}
	cfg.Print(log.Printf)

	logger := qlog.New(cfg.LogLevel, cfg.LogFormat)

	scripts, dir, err := loadScripts(cfg.ScriptsConfig, cfg.ScriptsBaseDir, logger)
	if err != nil {
		return err
	}
	cfg.ScriptsBaseDir = dir

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := services.NewServices(ctx, cfg, scripts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svcs.Close(); err != nil {
			logger.Error("failed to close services", "error", err)
		}
	}()

	n := qcron.ConfigureRecurring(scripts, svcs.Cron, svcs.Jobs, logger)
	logger.Info("recurring jobs configured", "count", n)

	if cfg.StoreBackend == config.BackendPostgres {
		err := svcs.Cron.Schedule(pruneEntryID, pruneSchedule, func(ctx context.Context) {
			if _, err := svcs.Jobs.Prune(ctx, cfg.JobRetention); err != nil {
				logger.Error("failed to prune jobs", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule job pruning: %w", err)
		}
	}

	if n, err := svcs.Jobs.Pending(ctx); err == nil && n > 0 {
		logger.Info("jobs waiting in queue", "count", n)
	}

	api := qapi.NewApi(qapi.Options{TrustProxy: cfg.TrustProxy})
	routes.RegisterAPI(api.Api, svcs)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr, "docs", cfg.BaseURL+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return svcs.Jobs.Run(gctx)
	})

	g.Go(func() error {
		return svcs.Cron.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
