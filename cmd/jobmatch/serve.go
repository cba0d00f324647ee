package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/api"
	"github.com/amishk599/jobmatch/internal/scheduler"
)

var (
	serveAddr      string
	serveScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the queue HTTP API",
	Long:  "Serves the queue API. With --schedule the ingest and match daemon runs in the same process.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&serveScheduler, "schedule", false, "also run the scheduler loop")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, serveScheduler, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(ctx, a.queue, a.processor, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	schedDone := make(chan struct{})
	if serveScheduler {
		sched := scheduler.NewScheduler(a.ingester, a.processor, cfg.Schedule.Interval, scheduleWindow(a), logger)
		go func() {
			defer close(schedDone)
			if err := sched.Run(ctx); err != nil {
				logger.Error("scheduler error", "error", err)
			}
		}()
	} else {
		close(schedDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("api server failed", "error", err)
			stop()
			<-schedDone
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	<-schedDone
	logger.Info("goodbye")
	return nil
}
