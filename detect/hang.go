package detect

import (
	"fmt"
	"time"

	"github.com/replayrig/replayrig/model"
)

const (
	DefaultMaxSameScreenSteps = 8
	DefaultMaxLoading         = 6 * time.Second
)

// HangDetector flags a session that stays on one screen for too many steps
// or keeps loading for too long.
type HangDetector struct {
	maxSameScreenSteps int
	maxLoading         time.Duration

	lastScreen   string
	seen         bool
	sameSteps    int
	lastChange   time.Time
	loadingSince time.Time
}

// HangOption configures a HangDetector.
type HangOption func(*HangDetector)

func WithMaxSameScreenSteps(n int) HangOption {
	return func(d *HangDetector) {
		d.maxSameScreenSteps = n
	}
}

func WithMaxLoading(max time.Duration) HangOption {
	return func(d *HangDetector) {
		d.maxLoading = max
	}
}

func NewHangDetector(opts ...HangOption) *HangDetector {
	d := &HangDetector{
		maxSameScreenSteps: DefaultMaxSameScreenSteps,
		maxLoading:         DefaultMaxLoading,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe feeds one observed state taken at now.
func (d *HangDetector) Observe(state model.GameState, now time.Time) {
	if d.seen && state.ScreenID == d.lastScreen {
		d.sameSteps++
	} else {
		d.sameSteps = 0
		d.lastChange = now
		d.lastScreen = state.ScreenID
		d.seen = true
	}

	if state.IsLoading {
		if d.loadingSince.IsZero() {
			d.loadingSince = now
		}
	} else {
		d.loadingSince = time.Time{}
	}
}

// Check reports a hang without mutating the detector.
func (d *HangDetector) Check(now time.Time) (string, bool) {
	if d.sameSteps >= d.maxSameScreenSteps && d.lastScreen != "" {
		return fmt.Sprintf("hang: screen %q repeated %d steps", d.lastScreen, d.sameSteps+1), true
	}

	if !d.loadingSince.IsZero() {
		if elapsed := now.Sub(d.loadingSince); elapsed > d.maxLoading {
			return fmt.Sprintf("hang: loading timeout %.1fs", elapsed.Seconds()), true
		}
	}
	return "", false
}

// LastChange returns when the screen id last changed.
func (d *HangDetector) LastChange() time.Time {
	return d.lastChange
}
