package server

import (
	"context"
	"errors"

	"github.com/lotas/hidenobids/internal/types"
)

// Commands understood by the extension shim.
const (
	ActionInject         = "inject"
	ActionActiveTab      = "activeTab"
	ActionSetBadgeText   = "setBadgeText"
	ActionSetBadgeColors = "setBadgeColors"
	ActionSetIcon        = "setIcon"
)

// ErrNoActiveTab is returned when the browser has no focused tab.
var ErrNoActiveTab = errors.New("no active tab")

// Relay drives a real browser through the connected extension. It
// implements coordinator.Platform.
type Relay struct {
	srv *Server
}

// NewRelay wraps srv.
func NewRelay(srv *Server) *Relay {
	return &Relay{srv: srv}
}

func (r *Relay) ActiveTab(ctx context.Context) (types.Tab, error) {
	resp, err := r.srv.Request(ctx, OutgoingMsg{Action: ActionActiveTab})
	if err != nil {
		return types.Tab{}, err
	}
	if resp.TabID == 0 {
		return types.Tab{}, ErrNoActiveTab
	}
	return types.Tab{ID: types.TabID(resp.TabID), URL: resp.URL}, nil
}

func (r *Relay) Inject(ctx context.Context, tab types.TabID) error {
	_, err := r.srv.Request(ctx, OutgoingMsg{Action: ActionInject, TabID: int(tab)})
	return err
}

// SendFilter delivers updateFilter to the tab's content script. The
// extension answers ok=false when no content script is listening.
func (r *Relay) SendFilter(ctx context.Context, tab types.TabID, s types.Settings) error {
	_, err := r.srv.Request(ctx, OutgoingMsg{
		Action:   types.ActionUpdateFilter,
		TabID:    int(tab),
		Settings: &s,
	})
	return err
}

func (r *Relay) SetBadge(_ context.Context, tab types.TabID, text string) error {
	return r.srv.Send(OutgoingMsg{Action: ActionSetBadgeText, TabID: int(tab), Text: text})
}

func (r *Relay) SetBadgeColors(_ context.Context, background, text string) error {
	return r.srv.Send(OutgoingMsg{Action: ActionSetBadgeColors, Background: background, Color: text})
}

func (r *Relay) SetIcon(_ context.Context, enabled bool) error {
	return r.srv.Send(OutgoingMsg{Action: ActionSetIcon, Enabled: &enabled})
}
