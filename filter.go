package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lotas/hidenobids/internal/agent"
	"github.com/lotas/hidenobids/internal/pagecache"
	"github.com/lotas/hidenobids/internal/types"
)

var filterCmd = &cobra.Command{
	Use:   "filter [file]",
	Short: "Filter a saved or fetched search page and report the hidden count",
	Long: `Runs the page filter on an HTML search page, prints how many listings
would be hidden and optionally writes the filtered page.

Pages fetched with --url are cached, so re-running with a different
--max-bids does not fetch again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilter,
}

func init() {
	f := filterCmd.Flags()
	f.String("url", "", "Fetch the page from this URL instead of a file")
	f.Int("max-bids", types.NoBidLimit, "Hide listings with more bids than this (11 = no upper limit)")
	f.Bool("disabled", false, "Run with filtering switched off")
	f.String("out", "", "Write the filtered HTML to this file")
	f.BoolP("verbose", "v", false, "List every listing with its bid count")
}

func runFilter(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	url, _ := flags.GetString("url")
	maxBids, _ := flags.GetInt("max-bids")
	disabled, _ := flags.GetBool("disabled")
	outPath, _ := flags.GetString("out")
	verbose, _ := flags.GetBool("verbose")

	s := types.Settings{Enabled: !disabled, MaxBids: maxBids}
	if err := s.Validate(); err != nil {
		return err
	}

	var src io.Reader
	switch {
	case url != "" && len(args) > 0:
		return fmt.Errorf("give either a file or --url, not both")
	case url != "":
		fetcher := pagecache.NewFetcher(pagecache.New(cfg.CacheDir, cfg.CacheMaxAge))
		body, cached, err := fetcher.Fetch(cmd.Context(), url)
		if err != nil {
			return err
		}
		if cached {
			fmt.Fprintln(cmd.ErrOrStderr(), "(cached)")
		}
		src = bytes.NewReader(body)
	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	default:
		src = cmd.InOrStdin()
	}

	doc, err := agent.Parse(src)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	a, err := agent.New(doc, cfg.Selectors, nil)
	if err != nil {
		return err
	}
	a.Initialize(nil)
	hidden := a.ApplyFilter(cmd.Context(), s)

	out := cmd.OutOrStdout()
	listings := a.Listings()
	if verbose {
		for i, item := range listings {
			state := "shown"
			if agent.IsHidden(item) {
				state = "hidden"
			}
			fmt.Fprintf(out, "%3d  %3d bids  %s\n", i+1, a.BidCount(item), state)
		}
	}
	fmt.Fprintf(out, "Hidden %d of %d listings (max bids: %s)\n", hidden, len(listings), s.ThresholdLabel())

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := a.Render(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		return f.Close()
	}
	return nil
}
