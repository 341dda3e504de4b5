// Package coordinator owns the filter settings and per-tab hidden counts and
// keeps page agents, badges and the settings panel in sync.
package coordinator

import (
	"context"
	"errors"
	"strconv"

	"github.com/lotas/hidenobids/internal/applog"
	"github.com/lotas/hidenobids/internal/notify"
	"github.com/lotas/hidenobids/internal/types"
)

// StatusComplete is the tab status reported once a page finished loading.
const StatusComplete = "complete"

// ErrStopped is returned by Post and requests after Run has returned.
var ErrStopped = errors.New("coordinator stopped")

// Platform is the browser side: tabs, injection, messaging and badge.
type Platform interface {
	ActiveTab(ctx context.Context) (types.Tab, error)
	Inject(ctx context.Context, tab types.TabID) error
	SendFilter(ctx context.Context, tab types.TabID, s types.Settings) error
	SetBadge(ctx context.Context, tab types.TabID, text string) error
	SetBadgeColors(ctx context.Context, background, text string) error
	SetIcon(ctx context.Context, enabled bool) error
}

// Store persists settings and tab counts. The coordinator is its only writer.
type Store interface {
	Init(ctx context.Context, defaults types.Settings) (types.Settings, error)
	Settings(ctx context.Context) (types.Settings, error)
	SaveSettings(ctx context.Context, p types.SettingsPatch) (types.Settings, error)
	TabCount(ctx context.Context, tab types.TabID) (int, bool, error)
	SetTabCount(ctx context.Context, tab types.TabID, count int) error
	DeleteTabCount(ctx context.Context, tab types.TabID) (bool, error)
	ClearTabCounts(ctx context.Context) error
}

// Matcher selects the pages the filter is injected into.
type Matcher interface {
	Match(url string) bool
}

// Options tune first-install defaults and badge colors.
type Options struct {
	DefaultEnabled  bool
	BadgeBackground string
	BadgeText       string
}

// DefaultOptions match the extension's original look: grey badge, white text.
func DefaultOptions() Options {
	return Options{
		BadgeBackground: "#808080",
		BadgeText:       "#FFFFFF",
	}
}

// View is what the settings panel shows.
type View struct {
	Settings  types.Settings
	ActiveTab types.TabID
	HasActive bool
	Count     int
}

// Coordinator serializes every state change on the goroutine running Run.
type Coordinator struct {
	platform Platform
	store    Store
	matcher  Matcher
	opts     Options

	events  chan Event
	stopped chan struct{}

	// Owned by the Run goroutine.
	tabs   map[types.TabID]types.TabState
	closed *closedTabs

	activations notify.Hub[types.TabID]
}

// New creates a coordinator. Call Run to start processing events.
func New(platform Platform, store Store, matcher Matcher, opts Options) *Coordinator {
	return &Coordinator{
		platform: platform,
		store:    store,
		matcher:  matcher,
		opts:     opts,
		events:   make(chan Event, 64),
		stopped:  make(chan struct{}),
		tabs:     make(map[types.TabID]types.TabState),
		closed:   newClosedTabs(maxClosedTabs),
	}
}

// Run processes events until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	applog.Info("coord.start")
	c.applyBadgeColors(ctx)
	for {
		select {
		case ev := <-c.events:
			c.Handle(ctx, ev)
		case <-ctx.Done():
			applog.Info("coord.stop")
			return ctx.Err()
		}
	}
}

// Post queues an event for the Run loop.
func (c *Coordinator) Post(ctx context.Context, ev Event) error {
	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues a settings change from the panel.
func (c *Coordinator) Submit(ctx context.Context, p types.SettingsPatch) error {
	return c.Post(ctx, SettingsChange{Patch: p})
}

// Snapshot returns the current settings and the active tab's hidden count.
// It is answered in order with other events.
func (c *Coordinator) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.Post(ctx, snapshotRequest{reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.stopped:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Activations subscribes to tab activation notices.
func (c *Coordinator) Activations() (<-chan types.TabID, func()) {
	return c.activations.Subscribe()
}

// TabState returns the lifecycle state of a tab. Only safe from the Run
// goroutine or when Run is not active.
func (c *Coordinator) TabState(tab types.TabID) types.TabState {
	if c.closed.has(tab) {
		return types.TabClosed
	}
	return c.tabs[tab]
}

// maxClosedTabs bounds how many closed tab IDs are remembered to reject
// late reports. Browsers do not reuse tab IDs within a session.
const maxClosedTabs = 1024

// closedTabs is a bounded set of closed tab IDs; the oldest is forgotten
// first.
type closedTabs struct {
	ids   map[types.TabID]struct{}
	order []types.TabID
	limit int
}

func newClosedTabs(limit int) *closedTabs {
	return &closedTabs{ids: make(map[types.TabID]struct{}), limit: limit}
}

func (s *closedTabs) add(tab types.TabID) {
	if _, ok := s.ids[tab]; ok {
		return
	}
	if len(s.order) >= s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	s.ids[tab] = struct{}{}
	s.order = append(s.order, tab)
}

func (s *closedTabs) has(tab types.TabID) bool {
	_, ok := s.ids[tab]
	return ok
}

func (s *closedTabs) len() int {
	return len(s.ids)
}

// BadgeText renders a count for the toolbar badge: empty for zero.
func BadgeText(count int) string {
	if count <= 0 {
		return ""
	}
	return strconv.Itoa(count)
}

func logFailure(event string, err error, kv ...any) bool {
	if err == nil {
		return false
	}
	applog.Error(event, err, kv...)
	return true
}
