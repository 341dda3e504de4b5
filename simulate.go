package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lotas/hidenobids/internal/agent"
	"github.com/lotas/hidenobids/internal/browser"
	"github.com/lotas/hidenobids/internal/coordinator"
	"github.com/lotas/hidenobids/internal/storage"
	"github.com/lotas/hidenobids/internal/types"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate page.html...",
	Short: "Open saved pages as tabs in an in-process browser and print their badges",
	Long: `Runs the coordinator against an in-process browser. Each file is opened as
a tab on a search URL (or --url-base), the settings are applied and the
badge text of every tab is printed. The state lives in a throwaway
database unless --db is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.Int("max-bids", types.NoBidLimit, "Threshold to apply (11 = no upper limit)")
	f.Bool("disabled", false, "Leave filtering switched off")
	f.String("url-base", "https://www.ebay.com/sch/i.html?_nkw=", "URL prefix for each tab; the file name is appended")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	maxBids, _ := flags.GetInt("max-bids")
	disabled, _ := flags.GetBool("disabled")
	base, _ := flags.GetString("url-base")
	if !types.ValidMaxBids(maxBids) {
		return fmt.Errorf("%w: %d", types.ErrMaxBidsRange, maxBids)
	}

	dbPath := cfg.DB
	if !cmd.Flags().Changed("db") {
		dir, err := os.MkdirTemp("", "hidenobids-sim")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, "sim.db")
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	m, err := cfg.Matcher()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	b := browser.New(cfg.Selectors)
	coord := coordinator.New(b, store, m, cfg.CoordinatorOptions())
	b.Connect(coord)
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if err := coord.Post(ctx, coordinator.Installed{}); err != nil {
		return err
	}
	if err := coord.Submit(ctx, types.SettingsPatch{Enabled: ptr(!disabled), MaxBids: ptr(maxBids)}); err != nil {
		return err
	}

	var ids []types.TabID
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		doc, err := agent.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		ids = append(ids, b.Open(ctx, base+url.QueryEscape(name), doc))
	}
	if err := settle(ctx, coord, b); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, id := range ids {
		badge := b.Badge(id)
		if badge == "" {
			badge = "-"
		}
		fmt.Fprintf(out, "tab %d  %-30s badge %s\n", id, filepath.Base(args[i]), badge)
	}
	return nil
}

// settle waits until the coordinator has handled everything queued and
// every page agent has reported back.
func settle(ctx context.Context, c *coordinator.Coordinator, b *browser.Browser) error {
	for i := 0; i < 3; i++ {
		if _, err := c.Snapshot(ctx); err != nil {
			return err
		}
		b.Wait()
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
