package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/poller"
	"github.com/amishk599/jobmatch/internal/store"
)

var dryRun bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll every enabled source once",
	Long:  "Fetches postings from every enabled source, filters them and enqueues the new ones.",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print matches instead of enqueuing them; nothing is persisted")
	rootCmd.AddCommand(ingestCmd)
}

// printEnqueuer stands in for the queue during a dry run.
type printEnqueuer struct{}

func (printEnqueuer) EnqueueOrUpdate(_ context.Context, p model.Posting) (model.QueueRecord, error) {
	fmt.Printf("%-30s %-50s %s\n", p.Company, p.Title, p.URL)
	return model.QueueRecord{URL: p.URL, Title: p.Title, Company: p.Company, Status: model.StatusPending}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		seen model.SeenStore
		dst  poller.Enqueuer
	)
	if dryRun {
		logger.Info("dry-run mode enabled, nothing will be enqueued or marked as seen")
		seen = store.NewNopStore()
		dst = printEnqueuer{}
	} else {
		q, err := openQueue(ctx, cfg)
		if err != nil {
			logger.Error("failed to open queue", "error", err)
			os.Exit(1)
		}
		defer q.Close()

		sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			logger.Error("failed to open seen store", "error", err)
			os.Exit(1)
		}
		defer sqlStore.Close()
		seen, dst = sqlStore, q
	}

	in, err := buildIngester(cfg, seen, dst, logger)
	if err != nil {
		logger.Error("failed to build ingester", "error", err)
		os.Exit(1)
	}

	total, err := in.Ingest(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Enqueued %d postings\n", total)
	return nil
}
