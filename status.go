package main

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lotas/hidenobids/internal/storage"
	"github.com/lotas/hidenobids/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the saved settings and per-tab hidden counts",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")
}

type tabCount struct {
	Tab   types.TabID `json:"tabId"`
	Count int         `json:"count"`
}

type statusReport struct {
	Settings types.Settings `json:"settings"`
	Tabs     []tabCount     `json:"tabs"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")

	store, err := storage.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	settings, err := store.Settings(ctx)
	if err != nil {
		return err
	}
	counts, err := store.TabCounts(ctx)
	if err != nil {
		return err
	}

	ids := lo.Keys(counts)
	slices.Sort(ids)
	report := statusReport{
		Settings: settings,
		Tabs: lo.Map(ids, func(id types.TabID, _ int) tabCount {
			return tabCount{Tab: id, Count: counts[id]}
		}),
	}

	out := cmd.OutOrStdout()
	if output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	state := "off"
	if settings.Enabled {
		state = "on"
	}
	fmt.Fprintf(out, "Filter:   %s\n", state)
	fmt.Fprintf(out, "Max bids: %s\n", settings.ThresholdLabel())
	if len(report.Tabs) == 0 {
		fmt.Fprintln(out, "No tabs reporting.")
		return nil
	}
	total := lo.SumBy(report.Tabs, func(t tabCount) int { return t.Count })
	fmt.Fprintf(out, "\n%d tabs, %d listings hidden\n", len(report.Tabs), total)
	for _, t := range report.Tabs {
		fmt.Fprintf(out, "  tab %-6d %d\n", t.Tab, t.Count)
	}
	return nil
}
