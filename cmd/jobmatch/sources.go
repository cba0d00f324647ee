package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List all configured sources",
	Long:  "Reads the config and prints a table of all configured job boards.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-25s %-12s %-25s %s\n", "Source", "ATS", "Board", "Status")
	fmt.Println(strings.Repeat("─", 72))

	enabled := 0
	for _, s := range cfg.Sources {
		status := "disabled"
		if s.Enabled {
			status = "enabled"
			enabled++
		}
		fmt.Printf("%-25s %-12s %-25s %s\n", s.Name, s.ATS, s.BoardToken, status)
	}

	fmt.Printf("\nTotal: %d sources (%d enabled, %d disabled)\n", len(cfg.Sources), enabled, len(cfg.Sources)-enabled)
	return nil
}
