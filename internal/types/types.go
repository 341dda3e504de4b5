package types

import (
	"errors"
	"fmt"
	"strconv"
)

// NoBidLimit is the MaxBids sentinel meaning "no upper bound" (shown as "All").
const NoBidLimit = 11

// ErrMaxBidsRange is returned when a threshold falls outside [0, NoBidLimit].
var ErrMaxBidsRange = errors.New("maxBids out of range")

// TabID identifies a browser tab. Assigned by the host platform.
type TabID int

// Tab is the subset of browser tab info the coordinator cares about.
type Tab struct {
	ID  TabID
	URL string
}

// Settings is the user-controlled filter configuration.
type Settings struct {
	Enabled bool `json:"enabled"`
	MaxBids int  `json:"maxBids"`
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	Enabled *bool `json:"enabled,omitempty"`
	MaxBids *int  `json:"maxBids,omitempty"`
}

// DefaultSettings returns the settings written on first install.
func DefaultSettings(enabled bool) Settings {
	return Settings{Enabled: enabled, MaxBids: NoBidLimit}
}

// ValidMaxBids reports whether n is an accepted threshold.
func ValidMaxBids(n int) bool {
	return n >= 0 && n <= NoBidLimit
}

// Validate checks that MaxBids is within range.
func (s Settings) Validate() error {
	if !ValidMaxBids(s.MaxBids) {
		return fmt.Errorf("%w: %d", ErrMaxBidsRange, s.MaxBids)
	}
	return nil
}

// Merge returns s with the non-nil fields of p applied.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.MaxBids != nil {
		s.MaxBids = *p.MaxBids
	}
	return s
}

// Unlimited reports whether the threshold is the sentinel.
func (s Settings) Unlimited() bool {
	return s.MaxBids >= NoBidLimit
}

// ThresholdLabel is the slider label: "All" at the sentinel, else the number.
func (s Settings) ThresholdLabel() string {
	if s.Unlimited() {
		return "All"
	}
	return strconv.Itoa(s.MaxBids)
}

// EnablePatch builds a patch that only changes Enabled.
func EnablePatch(enabled bool) SettingsPatch {
	return SettingsPatch{Enabled: &enabled}
}

// MaxBidsPatch builds a patch that only changes MaxBids.
func MaxBidsPatch(n int) SettingsPatch {
	return SettingsPatch{MaxBids: &n}
}

// TabState tracks the per-tab lifecycle of the page filter.
type TabState int

const (
	TabUninitialized TabState = iota
	TabInjected
	TabReporting
	TabClosed
)

func (s TabState) String() string {
	switch s {
	case TabUninitialized:
		return "uninitialized"
	case TabInjected:
		return "injected"
	case TabReporting:
		return "reporting"
	case TabClosed:
		return "closed"
	}
	return "unknown"
}

// Message actions exchanged between the coordinator, agents and the panel.
const (
	ActionToggleExtension    = "toggleExtension"
	ActionSetMaxBids         = "setMaxBids"
	ActionUpdateFilter       = "updateFilter"
	ActionUpdateBlockedCount = "updateBlockedCount"
	ActionUpdateCounter      = "updateCounter"
)

// Persisted state keys.
const (
	KeyExtensionEnabled = "extensionEnabled"
	KeyMaxBids          = "maxBids"
	KeyTabBlockedCounts = "tabBlockedCounts"
)
