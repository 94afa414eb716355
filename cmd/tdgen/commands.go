package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/tdgen/internal/config"
	"github.com/kalambet/tdgen/internal/dataset"
	"github.com/kalambet/tdgen/internal/events"
	"github.com/kalambet/tdgen/internal/records"
	"github.com/kalambet/tdgen/internal/storage"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending work, dataset size and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context(), config.LoadUnchecked())
	},
}

func showStatus(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pending, err := records.NewSource(cfg.Pipeline.PendingDir).List()
	if err != nil {
		printStatus("Pending", "error: %v", err)
	} else {
		printStatus("Pending", "%d records in %s", len(pending), cfg.Pipeline.PendingDir)
	}

	processed, err := records.NewSource(cfg.Pipeline.ProcessedDir).List()
	if err == nil {
		printStatus("Processed", "%d records in %s", len(processed), cfg.Pipeline.ProcessedDir)
	}

	st, err := dataset.NewWriter(cfg.Pipeline.DatasetPath, cfg.Pipeline.WriteThreshold).Stats()
	if err != nil {
		printStatus("Dataset", "error: %v", err)
	} else {
		header := "with header"
		if !st.HasHeader {
			header = "no header"
		}
		printStatus("Dataset", "%d rows (%s) in %s", st.Rows, header, cfg.Pipeline.DatasetPath)
	}

	printStatus("Provider", "%s (%s)", cfg.Generation.Provider, cfg.Generation.Model)

	if client := newAPIClient(cfg); client != nil {
		resp, err := client.get(ctx, "/health")
		if err != nil {
			printStatus("Live run", "not running")
		} else {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				printStatus("Live run", "serving on %s", cfg.Metrics.Addr)
			} else {
				printStatus("Live run", "error (HTTP %d)", resp.StatusCode)
			}
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printWarning("run ledger unavailable: %v", err)
		return nil
	}
	defer store.Close()

	runs, err := store.RecentRuns(5)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		printStatus("Runs", "none yet")
	} else {
		fmt.Fprintln(os.Stderr, colorize(colorBold, "  Recent runs:"))
		for _, r := range runs {
			fmt.Fprintf(os.Stderr, "    %s  %s  %-11s processed=%d failed=%d skipped=%d\n",
				colorize(colorCyan, r.ID[:8]), formatTime(r.StartedAt), r.Status, r.Processed, r.Failed, r.Skipped)
		}
	}

	counts, err := store.FailureCountsByComponent()
	if err != nil {
		return fmt.Errorf("counting failures: %w", err)
	}
	if len(counts) > 0 {
		components := make([]string, 0, len(counts))
		for c := range counts {
			components = append(components, c)
		}
		sort.Strings(components)
		parts := make([]string, len(components))
		for i, c := range components {
			parts[i] = fmt.Sprintf("%s=%d", c, counts[c])
		}
		printStatus("Failures", "%s", strings.Join(parts, " "))
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// --- events ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded access and failure events",
	RunE: func(cmd *cobra.Command, args []string) error {
		failures, _ := cmd.Flags().GetBool("failures")
		record, _ := cmd.Flags().GetString("record")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg := config.LoadUnchecked()
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		f := storage.EventFilter{RecordID: record, Limit: limit}
		if failures {
			f.Kind = events.KindFailure
		}
		evs, err := store.ListEvents(f)
		if err != nil {
			return err
		}
		if len(evs) == 0 {
			fmt.Println("No events found.")
			return nil
		}
		printEvents(os.Stdout, evs)
		return nil
	},
}

func init() {
	eventsCmd.Flags().Bool("failures", false, "only show failures")
	eventsCmd.Flags().String("record", "", "only show events for this record")
	eventsCmd.Flags().Int("limit", 50, "maximum number of events to list")
}

func printEvents(w *os.File, evs []events.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, ev := range evs {
		detail := ev.Outcome
		if ev.Cause != "" {
			detail += ": " + ev.Cause
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			formatTime(ev.Time),
			colorize(kindColor(string(ev.Kind)), string(ev.Kind)),
			ev.Component,
			ev.RecordID,
			truncate(detail, 100),
		)
	}
	tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadUnchecked()
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys and their environment variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.ShowAll(config.LoadUnchecked()) {
			fmt.Printf("  %-28s %s\n", k.Key, colorize(colorCyan, k.EnvVar))
		}
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-api-key <key>",
	Short: "Store the generation API key in the secrets file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("API key must not be empty")
		}
		if err := config.SetSecret("tdgen", "api_key", args[0]); err != nil {
			return fmt.Errorf("storing API key: %w", err)
		}
		printSuccess("API key stored")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configSetKeyCmd)
}
