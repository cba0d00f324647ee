package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/audit"
	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/queue"
)

var (
	listStatus string
	listLimit  int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the job queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued postings, oldest first",
	RunE:  withQueue(runQueueList),
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record counts per status",
	RunE:  withQueue(runQueueStats),
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Reset a record to pending",
	Args:  cobra.ExactArgs(1),
	RunE: withQueue(func(ctx context.Context, q queue.Store, args []string) error {
		if err := q.Requeue(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("requeued %s\n", args[0])
		return nil
	}),
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a record from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: withQueue(func(ctx context.Context, q queue.Store, args []string) error {
		if err := q.Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	}),
}

var queueBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the queue interactively (TUI)",
	Long:  "Shows the status picker, then the full-screen browser. Press r on a record to requeue it.",
	RunE:  withQueue(runQueueBrowse),
}

func init() {
	queueListCmd.Flags().StringVar(&listStatus, "status", "", "only list records with this status (pending, done, failed)")
	queueListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of records to print")

	queueCmd.AddCommand(queueListCmd, queueStatsCmd, queueRequeueCmd, queueRemoveCmd, queueBrowseCmd)
	rootCmd.AddCommand(queueCmd)
}

// withQueue opens the configured queue around fn.
func withQueue(fn func(ctx context.Context, q queue.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		q, err := openQueue(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open queue: %w", err)
		}
		defer q.Close()
		return fn(ctx, q, args)
	}
}

func runQueueList(ctx context.Context, q queue.Store, _ []string) error {
	status := model.Status(strings.ToLower(listStatus))
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", listStatus)
	}
	records, err := q.List(ctx, status, listLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCOMPANY\tTITLE\tAGE\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Company, r.Title,
			time.Since(r.CreatedAt).Round(time.Minute), r.LastError)
	}
	return w.Flush()
}

func runQueueStats(ctx context.Context, q queue.Store, _ []string) error {
	counts, err := q.Stats(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, st := range []model.Status{model.StatusPending, model.StatusDone, model.StatusFailed} {
		fmt.Printf("%-8s %d\n", st, counts[st])
		total += counts[st]
	}
	fmt.Printf("%-8s %d\n", "total", total)
	return nil
}

func runQueueBrowse(ctx context.Context, q queue.Store, _ []string) error {
	// Log output before the alt-screen starts corrupts the display.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	for {
		counts, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		status, ok, err := audit.RunStatusPicker(counts)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		label := string(status)
		if label == "" {
			label = "all"
		}
		records, err := audit.RunLoader(label, func(ctx context.Context) ([]model.QueueRecord, error) {
			return q.List(ctx, status, 0)
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("No %s records.\n", label)
			continue
		}

		wantQuit, err := audit.RunBrowser(records, label, q)
		if err != nil {
			return err
		}
		if wantQuit {
			return nil
		}
	}
}
