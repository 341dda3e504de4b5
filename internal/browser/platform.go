package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotas/hidenobids/internal/agent"
	"github.com/lotas/hidenobids/internal/coordinator"
	"github.com/lotas/hidenobids/internal/types"
)

var errQueueFull = errors.New("tab message queue full")

// ActiveTab returns the focused tab.
func (b *Browser) ActiveTab(context.Context) (types.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[b.active]
	if !ok {
		return types.Tab{}, ErrNoActiveTab
	}
	return types.Tab{ID: t.id, URL: t.url}, nil
}

// Inject starts the page agent in a tab. Injecting twice into the same
// page leaves the first agent in place.
func (b *Browser) Inject(_ context.Context, id types.TabID) error {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	if b.denied[id] {
		b.mu.Unlock()
		return fmt.Errorf("%w: tab %d", ErrInjectDenied, id)
	}
	a := t.agent
	if a == nil {
		var err error
		a, err = agent.New(t.doc, b.selectors, b.reporter(id))
		if err != nil {
			b.mu.Unlock()
			return err
		}
		t.agent = a
	}
	bus := pageBus{b: b, id: id, gen: t.gen}
	b.mu.Unlock()

	a.Initialize(bus)
	return nil
}

func (b *Browser) reporter(id types.TabID) agent.Reporter {
	return agent.ReporterFunc(func(ctx context.Context, count int) error {
		return b.post(ctx, coordinator.CountReport{Tab: id, Count: count})
	})
}

// SendFilter queues an updateFilter message for the tab's agent.
func (b *Browser) SendFilter(_ context.Context, id types.TabID, s types.Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	if len(t.handlers) == 0 {
		return fmt.Errorf("%w: %d", ErrNoReceiver, id)
	}
	b.addPending(1)
	select {
	case t.queue <- envelope{gen: t.gen, msg: agent.Message{Action: types.ActionUpdateFilter, Settings: s}}:
		return nil
	default:
		b.addPending(-1)
		return fmt.Errorf("%w: %d", errQueueFull, id)
	}
}

// SetBadge sets the per-tab badge text.
func (b *Browser) SetBadge(_ context.Context, id types.TabID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tabs[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	b.badges[id] = text
	return nil
}

// SetBadgeColors sets the badge colors for every tab.
func (b *Browser) SetBadgeColors(_ context.Context, background, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.badgeColors = [2]string{background, text}
	return nil
}

// SetIcon switches between the on and off toolbar icons.
func (b *Browser) SetIcon(_ context.Context, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.icon = enabled
	return nil
}
