package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Drain the queue once",
	Long:  "Rates every pending posting against the resume, then exits. Ignores working hours.",
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	stats, err := a.processor.ProcessQueue(ctx)
	if err != nil {
		logger.Error("queue run failed", "error", err)
		return err
	}
	if stats.Skipped {
		fmt.Println("Another queue run is in progress.")
		return nil
	}
	fmt.Printf("Processed %d batches: %d done, %d failed", stats.Batches, stats.Done, stats.Failed)
	if stats.Refreshed > 0 {
		fmt.Printf(", %d updated mid-run and left pending", stats.Refreshed)
	}
	fmt.Println()
	return nil
}
