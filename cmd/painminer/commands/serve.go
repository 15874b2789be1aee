package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/FranksOps/painminer/internal/api"
	"github.com/FranksOps/painminer/internal/metrics"
	"github.com/FranksOps/painminer/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// ServeCmd runs the HTTP API, the metrics endpoint and the preset scheduler.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the HTTP API and preset scheduler",
	RunE:    runServe,
}

var (
	serveAddr        string
	serveMetricsAddr string
	serveNoSchedule  bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "API listen address (overrides server.addr)")
	ServeCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Metrics listen address (overrides server.metrics_addr; \"off\" disables)")
	ServeCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "Do not run scheduled presets")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	metricsAddr := a.cfg.Server.MetricsAddr
	if serveMetricsAddr != "" {
		metricsAddr = serveMetricsAddr
	}

	if metricsAddr != "" && metricsAddr != "off" {
		ms, err := metrics.Start(metricsAddr, a.logger)
		if err != nil {
			return err
		}
		a.logger.Info("metrics listening", "addr", ms.Addr())
		defer func() {
			if err := ms.Stop(context.Background()); err != nil {
				a.logger.Error("metrics shutdown failed", "error", err)
			}
		}()
	}

	if !serveNoSchedule {
		sched := scheduler.New(a.pipeline, a.cfg.Presets, a.logger.With("component", "scheduler"))
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { <-sched.Stop().Done() }()
	}

	if !a.logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(a.pipeline, a.logger.With("component", "api")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down; waiting for running searches")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
