// Package panel holds the settings panel logic: it shows the current
// settings and the active tab's hidden count and forwards user edits to the
// coordinator.
package panel

import (
	"context"
	"fmt"
	"sync"

	"github.com/lotas/hidenobids/internal/applog"
	"github.com/lotas/hidenobids/internal/coordinator"
	"github.com/lotas/hidenobids/internal/storage"
	"github.com/lotas/hidenobids/internal/types"
)

// Backend is the coordinator as seen by the panel.
type Backend interface {
	Snapshot(ctx context.Context) (coordinator.View, error)
	Submit(ctx context.Context, p types.SettingsPatch) error
	Activations() (<-chan types.TabID, func())
}

// Watcher delivers persisted-state change notifications.
type Watcher interface {
	Watch() (<-chan storage.Change, func())
}

// State is what the panel displays.
type State struct {
	Settings      types.Settings
	Count         int
	HasActive     bool
	SliderVisible bool
	Description   string
}

// Describe is the live text under the threshold slider.
func Describe(maxBids int) string {
	if maxBids >= types.NoBidLimit {
		return "Showing all items, regardless of bid count."
	}
	return fmt.Sprintf("Hiding items with 0 bids or more than %d bids.", maxBids)
}

// Panel is safe for concurrent use.
type Panel struct {
	backend Backend
	watcher Watcher

	refresh chan struct{}

	mu      sync.Mutex
	open    bool
	state   State
	cancels []func()
	stop    chan struct{}
}

// New creates a closed panel.
func New(backend Backend, watcher Watcher) *Panel {
	return &Panel{
		backend: backend,
		watcher: watcher,
		refresh: make(chan struct{}, 1),
		state:   stateFor(types.DefaultSettings(false)),
	}
}

func stateFor(s types.Settings) State {
	return State{
		Settings:      s,
		SliderVisible: s.Enabled,
		Description:   Describe(s.MaxBids),
	}
}

// Open loads the current settings and count and starts listening for count
// changes and tab switches. Opening an open panel does nothing.
func (p *Panel) Open(ctx context.Context) {
	p.mu.Lock()
	if p.open {
		p.mu.Unlock()
		return
	}
	p.open = true
	p.stop = make(chan struct{})

	changes, cancelChanges := p.watcher.Watch()
	activations, cancelActivations := p.backend.Activations()
	p.cancels = []func(){cancelChanges, cancelActivations}
	stop := p.stop
	p.mu.Unlock()

	go p.listen(changes, activations, stop)

	v, err := p.backend.Snapshot(ctx)
	if err != nil {
		applog.Error("panel.load", err)
		return
	}
	p.mu.Lock()
	p.state = stateFor(v.Settings)
	p.state.Count, p.state.HasActive = v.Count, v.HasActive
	p.mu.Unlock()
}

func (p *Panel) listen(changes <-chan storage.Change, activations <-chan types.TabID, stop <-chan struct{}) {
	for {
		select {
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Has(types.KeyTabBlockedCounts) {
				p.signal()
			}
		case _, ok := <-activations:
			if !ok {
				return
			}
			p.signal()
		case <-stop:
			return
		}
	}
}

func (p *Panel) signal() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Events signals when the displayed count may be stale; call Refresh.
func (p *Panel) Events() <-chan struct{} {
	return p.refresh
}

// Refresh re-reads the active tab's count. On failure the count shows 0.
func (p *Panel) Refresh(ctx context.Context) State {
	v, err := p.backend.Snapshot(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		applog.Error("panel.refresh", err)
		p.state.Count = 0
		return p.state
	}
	p.state.Count, p.state.HasActive = v.Count, v.HasActive
	return p.state
}

// State returns what the panel currently shows.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Description is the current threshold text.
func (p *Panel) Description() string {
	return p.State().Description
}

// SliderVisible reports whether the threshold slider is shown.
func (p *Panel) SliderVisible() bool {
	return p.State().SliderVisible
}

// Toggle updates the slider visibility, then asks the coordinator to
// enable or disable filtering.
func (p *Panel) Toggle(ctx context.Context, enabled bool) error {
	p.mu.Lock()
	p.state.Settings.Enabled = enabled
	p.state.SliderVisible = enabled
	p.mu.Unlock()
	return p.backend.Submit(ctx, types.EnablePatch(enabled))
}

// SetMaxBids updates the description, then sends the new threshold.
// Values outside [0, NoBidLimit] are rejected and nothing is sent.
func (p *Panel) SetMaxBids(ctx context.Context, n int) error {
	if !types.ValidMaxBids(n) {
		return fmt.Errorf("%w: %d", types.ErrMaxBidsRange, n)
	}
	p.mu.Lock()
	p.state.Settings.MaxBids = n
	p.state.Description = Describe(n)
	p.mu.Unlock()
	return p.backend.Submit(ctx, types.MaxBidsPatch(n))
}

// Close stops listening. It is safe to call more than once and the panel
// can be opened again afterwards.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return
	}
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
	close(p.stop)
	p.open = false
}

// IsOpen reports whether the panel is listening.
func (p *Panel) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}
