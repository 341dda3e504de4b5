// Package browser is an in-process host platform: tabs holding parsed pages,
// a FIFO message channel per tab and a per-tab badge. Injecting into a tab
// starts the page filter agent on that tab's document.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/net/html"

	"github.com/lotas/hidenobids/internal/agent"
	"github.com/lotas/hidenobids/internal/coordinator"
	"github.com/lotas/hidenobids/internal/types"
)

var (
	ErrNoTab        = errors.New("no such tab")
	ErrNoActiveTab  = errors.New("no active tab")
	ErrInjectDenied = errors.New("injection not permitted")
	ErrNoReceiver   = errors.New("no content script in tab")
	ErrUnreachable  = errors.New("coordinator unreachable")
)

const queueSize = 64

// Sink receives the browser's events; *coordinator.Coordinator is one.
type Sink interface {
	Post(ctx context.Context, ev coordinator.Event) error
}

type tab struct {
	id  types.TabID
	url string
	doc *html.Node

	// gen changes on every navigation so queued messages for an old page
	// are dropped.
	gen      int
	agent    *agent.Agent
	handlers []func(context.Context, agent.Message)

	queue chan envelope
}

type envelope struct {
	gen int
	msg agent.Message
}

// pageBus is the agent's view of its tab's inbound channel.
type pageBus struct {
	b   *Browser
	id  types.TabID
	gen int
}

func (p pageBus) Listen(h func(context.Context, agent.Message)) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if t, ok := p.b.tabs[p.id]; ok && t.gen == p.gen {
		t.handlers = append(t.handlers, h)
	}
}

// Browser implements coordinator.Platform.
type Browser struct {
	selectors agent.Selectors

	mu          sync.Mutex
	sink        Sink
	nextID      types.TabID
	tabs        map[types.TabID]*tab
	active      types.TabID
	denied      map[types.TabID]bool
	badges      map[types.TabID]string
	badgeColors [2]string
	icon        bool

	pendingMu sync.Mutex
	pending   int
	idle      *sync.Cond
}

// New creates an empty browser whose agents use sel.
func New(sel agent.Selectors) *Browser {
	b := &Browser{
		selectors: sel,
		nextID:    1,
		tabs:      make(map[types.TabID]*tab),
		denied:    make(map[types.TabID]bool),
		badges:    make(map[types.TabID]string),
	}
	b.idle = sync.NewCond(&b.pendingMu)
	return b
}

// Connect routes tab events and count reports to s.
func (b *Browser) Connect(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = s
}

func (b *Browser) post(ctx context.Context, ev coordinator.Event) error {
	b.mu.Lock()
	s := b.sink
	b.mu.Unlock()
	if s == nil {
		return ErrUnreachable
	}
	return s.Post(ctx, ev)
}

// Open creates a tab showing doc at url. The tab is not activated.
func (b *Browser) Open(ctx context.Context, url string, doc *html.Node) types.TabID {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	t := &tab{id: id, url: url, doc: doc, queue: make(chan envelope, queueSize)}
	b.tabs[id] = t
	b.mu.Unlock()

	go b.deliver(t)
	b.post(ctx, coordinator.TabUpdated{Tab: types.Tab{ID: id, URL: url}, Status: coordinator.StatusComplete})
	return id
}

// Navigate loads a new page into an existing tab.
func (b *Browser) Navigate(ctx context.Context, id types.TabID, url string, doc *html.Node) error {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	t.url = url
	t.doc = doc
	t.gen++
	t.agent = nil
	t.handlers = nil
	b.mu.Unlock()

	b.post(ctx, coordinator.TabUpdated{Tab: types.Tab{ID: id, URL: url}, Status: "loading"})
	return b.post(ctx, coordinator.TabUpdated{Tab: types.Tab{ID: id, URL: url}, Status: coordinator.StatusComplete})
}

// Activate makes id the active tab.
func (b *Browser) Activate(ctx context.Context, id types.TabID) error {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	b.active = id
	url := t.url
	b.mu.Unlock()

	return b.post(ctx, coordinator.TabActivated{Tab: types.Tab{ID: id, URL: url}})
}

// Close removes the tab.
func (b *Browser) Close(ctx context.Context, id types.TabID) error {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	delete(b.tabs, id)
	delete(b.badges, id)
	if b.active == id {
		b.active = 0
	}
	close(t.queue)
	b.mu.Unlock()

	return b.post(ctx, coordinator.TabRemoved{Tab: id})
}

// Deny makes injection into id fail, like a privileged page.
func (b *Browser) Deny(id types.TabID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.denied[id] = true
}

// Tabs returns the open tab IDs in ascending order.
func (b *Browser) Tabs() []types.TabID {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]types.TabID, 0, len(b.tabs))
	for id := range b.tabs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Page returns the current document of a tab.
func (b *Browser) Page(id types.TabID) *html.Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tabs[id]; ok {
		return t.doc
	}
	return nil
}

// Agent returns the page agent running in a tab, if any.
func (b *Browser) Agent(id types.TabID) *agent.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tabs[id]; ok {
		return t.agent
	}
	return nil
}

// Badge returns the badge text shown for a tab.
func (b *Browser) Badge(id types.TabID) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.badges[id]
}

// BadgeColors returns the background and text colors.
func (b *Browser) BadgeColors() (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.badgeColors[0], b.badgeColors[1]
}

// IconEnabled reports whether the "on" icon is shown.
func (b *Browser) IconEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.icon
}

// Wait blocks until every queued tab message has been handled.
func (b *Browser) Wait() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for b.pending > 0 {
		b.idle.Wait()
	}
}

func (b *Browser) addPending(delta int) {
	b.pendingMu.Lock()
	b.pending += delta
	if b.pending == 0 {
		b.idle.Broadcast()
	}
	b.pendingMu.Unlock()
}

// deliver runs a tab's handlers for each queued message, in send order.
func (b *Browser) deliver(t *tab) {
	for env := range t.queue {
		b.mu.Lock()
		var handlers []func(context.Context, agent.Message)
		if t.gen == env.gen {
			handlers = append(handlers, t.handlers...)
		}
		b.mu.Unlock()

		for _, h := range handlers {
			h(context.Background(), env.msg)
		}
		b.addPending(-1)
	}
}
