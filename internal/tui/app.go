package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/hidenobids/internal/panel"
)

// --- Messages ---

type openedMsg struct{ state panel.State }
type stateMsg struct{ state panel.State }
type refreshMsg struct{}
type errMsg struct{ err error }
type tickMsg time.Time

// --- Keys ---

type keyMap struct {
	Toggle key.Binding
	Left   key.Binding
	Right  key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Left, k.Right, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultKeys() keyMap {
	return keyMap{
		Toggle: key.NewBinding(key.WithKeys(" ", "t"), key.WithHelp("space", "on/off")),
		Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "fewer bids")),
		Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "more bids")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// --- Commands ---

func openPanel(ctx context.Context, p *panel.Panel) tea.Cmd {
	return func() tea.Msg {
		p.Open(ctx)
		return openedMsg{state: p.State()}
	}
}

func waitForRefresh(p *panel.Panel) tea.Cmd {
	return func() tea.Msg {
		<-p.Events()
		return refreshMsg{}
	}
}

func refresh(ctx context.Context, p *panel.Panel) tea.Cmd {
	return func() tea.Msg {
		return stateMsg{state: p.Refresh(ctx)}
	}
}

func toggle(ctx context.Context, p *panel.Panel, enabled bool) tea.Cmd {
	return func() tea.Msg {
		if err := p.Toggle(ctx, enabled); err != nil {
			return errMsg{err}
		}
		return stateMsg{state: p.State()}
	}
}

func setMaxBids(ctx context.Context, p *panel.Panel, n int) tea.Cmd {
	return func() tea.Msg {
		if err := p.SetMaxBids(ctx, n); err != nil {
			return errMsg{err}
		}
		return stateMsg{state: p.State()}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// --- Model ---

// Model is the settings panel view.
type Model struct {
	ctx       context.Context
	panel     *panel.Panel
	connected func() bool

	state   panel.State
	slider  Slider
	keys    keyMap
	help    help.Model
	loading bool
	online  bool
	err     error
	width   int
	height  int
}

// NewModel builds the view over p. connected reports whether the browser
// extension is attached; nil means the platform is in-process.
func NewModel(ctx context.Context, p *panel.Panel, connected func() bool) Model {
	return Model{
		ctx:       ctx,
		panel:     p,
		connected: connected,
		keys:      defaultKeys(),
		help:      help.New(),
		loading:   true,
		slider:    NewSlider(p.State().Settings.MaxBids),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{openPanel(m.ctx, m.panel)}
	if m.connected != nil {
		cmds = append(cmds, tick())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case openedMsg:
		m.loading = false
		m.state = msg.state
		m.slider = NewSlider(msg.state.Settings.MaxBids)
		return m, waitForRefresh(m.panel)

	case refreshMsg:
		return m, tea.Batch(refresh(m.ctx, m.panel), waitForRefresh(m.panel))

	case stateMsg:
		m.state = msg.state
		m.err = nil
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil

	case tickMsg:
		m.online = m.connected()
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.panel.Close()
			return m, tea.Quit
		case m.loading:
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			enabled := !m.state.Settings.Enabled
			m.state.Settings.Enabled = enabled
			m.state.SliderVisible = enabled
			return m, toggle(m.ctx, m.panel, enabled)
		case key.Matches(msg, m.keys.Left):
			if m.state.SliderVisible && m.slider.MoveLeft() {
				return m.slid()
			}
		case key.Matches(msg, m.keys.Right):
			if m.state.SliderVisible && m.slider.MoveRight() {
				return m.slid()
			}
		}
	}
	return m, nil
}

func (m Model) slid() (tea.Model, tea.Cmd) {
	n := m.slider.Value
	m.state.Settings.MaxBids = n
	m.state.Description = panel.Describe(n)
	return m, setMaxBids(m.ctx, m.panel, n)
}

func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	onStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	offStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Hide No-Bid Listings") + "\n\n")

	if m.loading {
		b.WriteString(dimStyle.Render("Loading...") + "\n")
		return m.place(boxStyle.Render(b.String()))
	}

	status := offStyle.Render("○ off")
	if m.state.Settings.Enabled {
		status = onStyle.Render("● on")
	}
	b.WriteString(labelStyle.Render("Filter: ") + status + "\n\n")

	if m.state.SliderVisible {
		b.WriteString(m.slider.View() + "\n")
		b.WriteString(m.state.Description + "\n\n")
	}

	if m.state.HasActive {
		b.WriteString(labelStyle.Render("Hidden on this tab: ") + fmt.Sprintf("%d", m.state.Count) + "\n")
	} else {
		b.WriteString(dimStyle.Render("No active tab") + "\n")
	}

	if m.connected != nil {
		conn := dimStyle.Render("Extension ○ waiting...")
		if m.online {
			conn = onStyle.Render("Extension ● connected")
		}
		b.WriteString(conn + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return m.place(boxStyle.Render(b.String()))
}

func (m Model) place(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}
