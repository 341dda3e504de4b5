package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lotas/hidenobids/internal/applog"
	"github.com/lotas/hidenobids/internal/config"
	"github.com/lotas/hidenobids/internal/coordinator"
	"github.com/lotas/hidenobids/internal/panel"
	"github.com/lotas/hidenobids/internal/server"
	"github.com/lotas/hidenobids/internal/storage"
	"github.com/lotas/hidenobids/internal/tui"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hidenobids",
	Short: "Hide zero-bid auction listings from search results",
	Long: `hidenobids is the native side of the Hide No-Bids browser extension.

It owns the filter settings and per-tab hidden counts, drives the extension
over a local WebSocket and shows the settings panel in the terminal.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { applog.Close() },
	RunE:              runPanel,
}

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Run the coordinator and open the settings panel (default)",
	RunE:  runPanel,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator and extension relay without the panel",
	RunE:  runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", config.DefaultPath(), "Config file")
	pf.Int("port", server.DefaultPort, "WebSocket port for the extension (env: "+config.EnvPort+")")
	pf.String("db", "", "Database path (env: "+config.EnvDB+")")
	pf.String("log-dir", "", "Log directory (env: "+config.EnvLogDir+")")

	rootCmd.AddCommand(panelCmd, serveCmd, filterCmd, statusCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup resolves the configuration (flag > env > file > default) and opens
// the log file.
func setup(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	loaded, err := config.Load(path, flags.Changed("config"))
	if err != nil {
		return err
	}
	if flags.Changed("port") {
		loaded.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("db") {
		loaded.DB, _ = flags.GetString("db")
	}
	if flags.Changed("log-dir") {
		loaded.LogDir, _ = flags.GetString("log-dir")
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg = loaded

	if err := applog.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	return nil
}

// host is the coordinator wired to the store and the extension relay.
type host struct {
	store *storage.Store
	srv   *server.Server
	coord *coordinator.Coordinator
}

func newHost() (*host, error) {
	store, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	m, err := cfg.Matcher()
	if err != nil {
		store.Close()
		return nil, err
	}
	srv := server.New(cfg.Port)
	coord := coordinator.New(server.NewRelay(srv), store, m, cfg.CoordinatorOptions())
	return &host{store: store, srv: srv, coord: coord}, nil
}

// start runs the relay, the coordinator loop and the message pump in g.
func (h *host) start(ctx context.Context, g *errgroup.Group) error {
	g.Go(func() error { return h.srv.ListenAndServe(ctx) })
	g.Go(func() error { return h.coord.Run(ctx) })
	g.Go(func() error { return server.Pump(ctx, h.srv.Messages(), h.coord) })
	return h.coord.Post(ctx, coordinator.Installed{})
}

func wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, coordinator.ErrStopped) {
		return err
	}
	return nil
}

func runPanel(cmd *cobra.Command, _ []string) error {
	h, err := newHost()
	if err != nil {
		return err
	}
	defer h.store.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if err := h.start(ctx, g); err != nil {
		return err
	}

	model := tui.NewModel(ctx, panel.New(h.coord, h.store), h.srv.Connected)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()
	cancel()
	if err := wait(g); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	h, err := newHost()
	if err != nil {
		return err
	}
	defer h.store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	if err := h.start(ctx, g); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on 127.0.0.1:%d (db %s)\n", cfg.Port, cfg.DB)
	return wait(g)
}
