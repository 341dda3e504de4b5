package filter

import (
	"math"
	"testing"

	"github.com/lotas/hidenobids/internal/types"
)

func TestShouldHideDisabledNeverHides(t *testing.T) {
	for maxBids := 0; maxBids <= types.NoBidLimit; maxBids++ {
		for bids := 0; bids < 30; bids++ {
			s := types.Settings{Enabled: false, MaxBids: maxBids}
			if ShouldHide(bids, s) {
				t.Fatalf("ShouldHide(%d, %+v) = true, want false", bids, s)
			}
		}
	}
}

func TestShouldHideZeroBidsWhenEnabled(t *testing.T) {
	for maxBids := 0; maxBids <= types.NoBidLimit; maxBids++ {
		s := types.Settings{Enabled: true, MaxBids: maxBids}
		if !ShouldHide(0, s) {
			t.Errorf("ShouldHide(0, %+v) = false, want true", s)
		}
	}
}

func TestShouldHideSentinelOnlyZero(t *testing.T) {
	s := types.Settings{Enabled: true, MaxBids: types.NoBidLimit}
	for bids := 0; bids < 200; bids++ {
		if got, want := ShouldHide(bids, s), bids == 0; got != want {
			t.Errorf("ShouldHide(%d, all) = %v, want %v", bids, got, want)
		}
	}
}

func TestShouldHideThreshold(t *testing.T) {
	s := types.Settings{Enabled: true, MaxBids: 5}
	tests := []struct {
		bids int
		want bool
	}{
		{0, true},
		{1, false},
		{3, false},
		{5, false},
		{6, true},
		{40, true},
	}
	for _, tt := range tests {
		if got := ShouldHide(tt.bids, s); got != tt.want {
			t.Errorf("ShouldHide(%d, max 5) = %v, want %v", tt.bids, got, tt.want)
		}
	}
}

func TestShouldHideThresholdZero(t *testing.T) {
	s := types.Settings{Enabled: true, MaxBids: 0}
	if !ShouldHide(1, s) {
		t.Error("max 0 should hide every listing")
	}
}

func TestParseBidCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"no bids yet", 0},
		{"0 bids", 0},
		{"7 bids", 7},
		{"  12 Gebote", 12},
		{"bids: 3 (ends in 2h)", 3},
		{"1,234 bids", 1},
		{"99999999999999999999999 bids", math.MaxInt},
	}
	for _, tt := range tests {
		if got := ParseBidCount(tt.text); got != tt.want {
			t.Errorf("ParseBidCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestHugeBidCountShownWithoutLimit(t *testing.T) {
	n := ParseBidCount("99999999999999999999999 bids")
	if ShouldHide(n, types.Settings{Enabled: true, MaxBids: types.NoBidLimit}) {
		t.Error("huge bid count hidden with no upper limit")
	}
	if !ShouldHide(n, types.Settings{Enabled: true, MaxBids: 10}) {
		t.Error("huge bid count shown under max 10")
	}
}
