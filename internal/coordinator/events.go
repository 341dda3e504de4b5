package coordinator

import (
	"context"

	"github.com/lotas/hidenobids/internal/applog"
	"github.com/lotas/hidenobids/internal/types"
)

// Event is anything the Run loop reacts to.
type Event interface {
	event()
}

// Installed fires when the extension is installed or updated.
type Installed struct{}

// SettingsChange carries a toggleExtension or setMaxBids request.
type SettingsChange struct {
	Patch types.SettingsPatch
}

// CountReport is an agent's updateBlockedCount for its tab.
type CountReport struct {
	Tab   types.TabID
	Count int
}

// TabUpdated is a tab status change, typically navigation complete.
type TabUpdated struct {
	Tab    types.Tab
	Status string
}

// TabActivated fires when the user switches to a tab.
type TabActivated struct {
	Tab types.Tab
}

// TabRemoved fires when a tab closes.
type TabRemoved struct {
	Tab types.TabID
}

type snapshotRequest struct {
	reply chan<- View
}

func (Installed) event()       {}
func (SettingsChange) event()  {}
func (CountReport) event()     {}
func (TabUpdated) event()      {}
func (TabActivated) event()    {}
func (TabRemoved) event()      {}
func (snapshotRequest) event() {}

// Handle applies a single event. Run calls it for every queued event; it
// must not be called concurrently with Run.
func (c *Coordinator) Handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case Installed:
		c.onInstalled(ctx)
	case SettingsChange:
		c.onSettingsChanged(ctx, ev.Patch)
	case CountReport:
		c.onCountReport(ctx, ev.Tab, ev.Count)
	case TabUpdated:
		c.onTabUpdated(ctx, ev.Tab, ev.Status)
	case TabActivated:
		c.onTabActivated(ctx, ev.Tab)
	case TabRemoved:
		c.onTabRemoved(ctx, ev.Tab)
	case snapshotRequest:
		ev.reply <- c.snapshot(ctx)
	}
}

func (c *Coordinator) onInstalled(ctx context.Context) {
	settings, err := c.store.Init(ctx, types.DefaultSettings(c.opts.DefaultEnabled))
	if logFailure("coord.install", err) {
		return
	}
	for id, state := range c.tabs {
		if state == types.TabReporting {
			c.tabs[id] = types.TabInjected
		}
	}
	logFailure("coord.icon", c.platform.SetIcon(ctx, settings.Enabled))
	c.applyBadgeColors(ctx)
	applog.Info("coord.installed", "enabled", settings.Enabled, "maxBids", settings.MaxBids)
}

func (c *Coordinator) onSettingsChanged(ctx context.Context, p types.SettingsPatch) {
	settings, err := c.store.SaveSettings(ctx, p)
	if logFailure("coord.settings", err) {
		return
	}
	applog.Info("coord.settings", "enabled", settings.Enabled, "maxBids", settings.MaxBids)

	toggled := p.Enabled != nil
	if toggled {
		logFailure("coord.icon", c.platform.SetIcon(ctx, settings.Enabled))
		if !settings.Enabled {
			logFailure("coord.clear", c.store.ClearTabCounts(ctx))
		}
	}

	// Only the active tab is updated now; the rest pick the new settings up
	// on their next activation or navigation.
	active, err := c.platform.ActiveTab(ctx)
	if logFailure("coord.active", err) {
		return
	}
	if toggled && settings.Enabled && c.tabs[active.ID] == types.TabUninitialized && !c.closed.has(active.ID) && c.matcher.Match(active.URL) {
		c.inject(ctx, active.ID)
	}
	if c.hasAgent(active) {
		c.push(ctx, active.ID, settings)
	}
	c.refreshBadge(ctx, active.ID)
}

func (c *Coordinator) onCountReport(ctx context.Context, tab types.TabID, count int) {
	if c.closed.has(tab) {
		applog.Info("coord.count.closed", "tab", tab, "count", count)
		return
	}
	if logFailure("coord.count", c.store.SetTabCount(ctx, tab, count), "tab", tab) {
		return
	}
	c.tabs[tab] = types.TabReporting
	c.setBadge(ctx, tab, count)
}

func (c *Coordinator) onTabUpdated(ctx context.Context, tab types.Tab, status string) {
	if status != StatusComplete || c.closed.has(tab.ID) {
		return
	}
	if c.matcher.Match(tab.URL) {
		if c.inject(ctx, tab.ID) {
			c.push(ctx, tab.ID, c.settings(ctx))
		}
	} else {
		// Navigated away: the old page's agent and count are gone.
		delete(c.tabs, tab.ID)
		_, err := c.store.DeleteTabCount(ctx, tab.ID)
		logFailure("coord.navigate", err, "tab", tab.ID)
	}
	c.refreshBadge(ctx, tab.ID)
}

func (c *Coordinator) onTabActivated(ctx context.Context, tab types.Tab) {
	if c.closed.has(tab.ID) {
		return
	}
	if c.hasAgent(tab) {
		c.push(ctx, tab.ID, c.settings(ctx))
	}
	c.refreshBadge(ctx, tab.ID)
	c.activations.Publish(tab.ID)
}

func (c *Coordinator) onTabRemoved(ctx context.Context, tab types.TabID) {
	delete(c.tabs, tab)
	c.closed.add(tab)
	_, err := c.store.DeleteTabCount(ctx, tab)
	logFailure("coord.remove", err, "tab", tab)
}

func (c *Coordinator) snapshot(ctx context.Context) View {
	v := View{Settings: c.settings(ctx)}
	active, err := c.platform.ActiveTab(ctx)
	if logFailure("coord.active", err) {
		return v
	}
	v.ActiveTab, v.HasActive = active.ID, true
	v.Count = c.count(ctx, active.ID)
	return v
}

// hasAgent reports whether a page filter is, or should be, running in tab.
func (c *Coordinator) hasAgent(tab types.Tab) bool {
	if c.closed.has(tab.ID) {
		return false
	}
	switch c.tabs[tab.ID] {
	case types.TabInjected, types.TabReporting:
		return true
	}
	return c.matcher.Match(tab.URL)
}

func (c *Coordinator) inject(ctx context.Context, tab types.TabID) bool {
	if logFailure("coord.inject", c.platform.Inject(ctx, tab), "tab", tab) {
		return false
	}
	c.tabs[tab] = types.TabInjected
	return true
}

func (c *Coordinator) push(ctx context.Context, tab types.TabID, s types.Settings) {
	logFailure("coord.push", c.platform.SendFilter(ctx, tab, s), "tab", tab)
}

// settings reads the persisted settings, falling back to the install
// defaults when the store is unreadable.
func (c *Coordinator) settings(ctx context.Context) types.Settings {
	s, err := c.store.Settings(ctx)
	if logFailure("coord.read", err) {
		return types.DefaultSettings(c.opts.DefaultEnabled)
	}
	return s
}

func (c *Coordinator) count(ctx context.Context, tab types.TabID) int {
	n, _, err := c.store.TabCount(ctx, tab)
	if logFailure("coord.read", err, "tab", tab) {
		return 0
	}
	return n
}

func (c *Coordinator) refreshBadge(ctx context.Context, tab types.TabID) {
	c.setBadge(ctx, tab, c.count(ctx, tab))
}

func (c *Coordinator) setBadge(ctx context.Context, tab types.TabID, count int) {
	logFailure("coord.badge", c.platform.SetBadge(ctx, tab, BadgeText(count)), "tab", tab)
}

func (c *Coordinator) applyBadgeColors(ctx context.Context) {
	logFailure("coord.badge", c.platform.SetBadgeColors(ctx, c.opts.BadgeBackground, c.opts.BadgeText))
}
