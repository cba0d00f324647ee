package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/model"
)

var enqueueFlags struct {
	url, title, company, description, location string
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add a posting to the queue by hand",
	Long:  "Adds or refreshes a single posting. An existing URL is reset to pending with the new fields.",
	RunE:  runEnqueue,
}

func init() {
	f := enqueueCmd.Flags()
	f.StringVar(&enqueueFlags.url, "url", "", "posting URL (required)")
	f.StringVar(&enqueueFlags.title, "title", "", "job title")
	f.StringVar(&enqueueFlags.company, "company", "", "company name")
	f.StringVar(&enqueueFlags.description, "description", "", "job description")
	f.StringVar(&enqueueFlags.location, "location", "", "job location")
	_ = enqueueCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()
	ctx := context.Background()

	q, err := openQueue(ctx, cfg)
	if err != nil {
		logger.Error("failed to open queue", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	rec, err := q.EnqueueOrUpdate(ctx, model.Posting{
		URL:         enqueueFlags.url,
		Title:       enqueueFlags.title,
		Company:     enqueueFlags.company,
		Description: enqueueFlags.description,
		Location:    enqueueFlags.location,
		Source:      "manual",
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", enqueueFlags.url, err)
	}
	fmt.Printf("%s  %s  %s\n", rec.ID, rec.Status, rec.URL)
	return nil
}
