package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotas/hidenobids/internal/applog"
	"github.com/lotas/hidenobids/internal/coordinator"
	"github.com/lotas/hidenobids/internal/types"
)

// Browser events sent by the extension shim.
const (
	TypeInstalled    = "installed"
	TypeTabUpdated   = "tabUpdated"
	TypeTabActivated = "tabActivated"
	TypeTabRemoved   = "tabRemoved"
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing field")
)

// Sink receives parsed events; *coordinator.Coordinator is one.
type Sink interface {
	Post(ctx context.Context, ev coordinator.Event) error
}

// ParseEvent converts an extension message into a coordinator event.
func ParseEvent(msg IncomingMsg) (coordinator.Event, error) {
	switch msg.Type {
	case TypeInstalled:
		return coordinator.Installed{}, nil
	case TypeTabUpdated:
		if msg.TabID == 0 {
			return nil, fmt.Errorf("%s: %w: tabId", msg.Type, ErrMissingField)
		}
		return coordinator.TabUpdated{
			Tab:    types.Tab{ID: types.TabID(msg.TabID), URL: msg.URL},
			Status: msg.Status,
		}, nil
	case TypeTabActivated:
		if msg.TabID == 0 {
			return nil, fmt.Errorf("%s: %w: tabId", msg.Type, ErrMissingField)
		}
		return coordinator.TabActivated{Tab: types.Tab{ID: types.TabID(msg.TabID), URL: msg.URL}}, nil
	case TypeTabRemoved:
		if msg.TabID == 0 {
			return nil, fmt.Errorf("%s: %w: tabId", msg.Type, ErrMissingField)
		}
		return coordinator.TabRemoved{Tab: types.TabID(msg.TabID)}, nil
	case types.ActionToggleExtension:
		if msg.Enabled == nil {
			return nil, fmt.Errorf("%s: %w: enabled", msg.Type, ErrMissingField)
		}
		return coordinator.SettingsChange{Patch: types.EnablePatch(*msg.Enabled)}, nil
	case types.ActionSetMaxBids:
		if msg.MaxBids == nil {
			return nil, fmt.Errorf("%s: %w: maxBids", msg.Type, ErrMissingField)
		}
		if !types.ValidMaxBids(*msg.MaxBids) {
			return nil, fmt.Errorf("%s: %w: %d", msg.Type, types.ErrMaxBidsRange, *msg.MaxBids)
		}
		return coordinator.SettingsChange{Patch: types.MaxBidsPatch(*msg.MaxBids)}, nil
	case types.ActionUpdateBlockedCount, types.ActionUpdateCounter:
		if msg.TabID == 0 || msg.Count == nil {
			return nil, fmt.Errorf("%s: %w: tabId/count", msg.Type, ErrMissingField)
		}
		if *msg.Count < 0 {
			return nil, fmt.Errorf("%s: negative count %d", msg.Type, *msg.Count)
		}
		return coordinator.CountReport{Tab: types.TabID(msg.TabID), Count: *msg.Count}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// Pump forwards extension messages to sink until ctx is done or msgs is
// closed. Malformed messages are logged and skipped.
func Pump(ctx context.Context, msgs <-chan IncomingMsg, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			ev, err := ParseEvent(msg)
			if err != nil {
				applog.Error("pump.parse", err, "type", msg.Type)
				continue
			}
			if err := sink.Post(ctx, ev); err != nil {
				return fmt.Errorf("post %s: %w", msg.Type, err)
			}
		}
	}
}
