package filter

import (
	"math"
	"regexp"
	"strconv"

	"github.com/lotas/hidenobids/internal/types"
)

var digitsPattern = regexp.MustCompile(`\d+`)

// ShouldHide decides whether a listing with bidCount bids is hidden.
// Zero-bid listings are always hidden while enabled; listings above the
// threshold are hidden unless the threshold is the NoBidLimit sentinel.
func ShouldHide(bidCount int, s types.Settings) bool {
	if !s.Enabled {
		return false
	}
	if bidCount == 0 {
		return true
	}
	return s.MaxBids < types.NoBidLimit && bidCount > s.MaxBids
}

// ParseBidCount extracts the first run of digits from text.
// Missing counts are 0; counts too large for an int saturate at math.MaxInt.
func ParseBidCount(text string) int {
	m := digitsPattern.FindString(text)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return math.MaxInt
	}
	return n
}
