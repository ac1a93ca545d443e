package display

import (
	"fmt"
	"math"
	"sort"
)

// DefaultRefreshMHz is assumed when a mode reports no refresh rate.
const DefaultRefreshMHz = 60_000

// Mode is one timing a connector reports.
type Mode struct {
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	RefreshMHz int  `json:"refresh_mhz"`
	Preferred  bool `json:"preferred"`
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%.3f", m.Width, m.Height, float64(m.RefreshMHz)/1000)
}

// RefreshHz returns the refresh rate in Hz.
func (m Mode) RefreshHz() float64 {
	return float64(m.RefreshMHz) / 1000
}

// ModeRequest carries the sizing fields from a monitor configuration entry.
// A zero Width/Height or RefreshHz means the field was not configured.
type ModeRequest struct {
	Width     int
	Height    int
	RefreshHz float64
}

func (r ModeRequest) hasSize() bool {
	return r.Width > 0 && r.Height > 0
}

func (r ModeRequest) hasRefresh() bool {
	return r.RefreshHz > 0
}

// PreferredModeIndex returns the index of the first preferred mode, or 0.
func PreferredModeIndex(modes []Mode) int {
	for i, m := range modes {
		if m.Preferred {
			return i
		}
	}
	return 0
}

// SelectMode picks the mode index to use for a connector.
//
// Without a request (or with an empty one) the preferred mode wins. Otherwise
// modes are filtered by size when a size was requested and ordered by refresh
// distance, then preferred flag, then higher refresh. The boolean result is
// false when a request was given but no mode satisfied it; the returned index
// is then the preferred fallback.
func SelectMode(modes []Mode, req *ModeRequest) (int, bool) {
	preferred := PreferredModeIndex(modes)
	if req == nil || (!req.hasSize() && !req.hasRefresh()) {
		return preferred, true
	}

	var candidates []int
	for i, m := range modes {
		if req.hasSize() && (m.Width != req.Width || m.Height != req.Height) {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return preferred, false
	}

	refreshDiff := func(m Mode) uint64 {
		if !req.hasRefresh() {
			return 0
		}
		return uint64(math.Abs(m.RefreshHz()-req.RefreshHz) * 1000)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		left, right := modes[candidates[i]], modes[candidates[j]]
		ld, rd := refreshDiff(left), refreshDiff(right)
		if ld != rd {
			return ld < rd
		}
		if left.Preferred != right.Preferred {
			return left.Preferred
		}
		return left.RefreshMHz > right.RefreshMHz
	})
	return candidates[0], true
}

// FrameDuration returns one frame interval for a refresh rate in mHz, in
// microseconds. It truncates twice: refresh to whole Hz, then the interval.
func FrameDuration(refreshMHz int) int64 {
	if refreshMHz < 1000 {
		refreshMHz = DefaultRefreshMHz
	}
	return 1_000_000 / int64(refreshMHz/1000)
}
