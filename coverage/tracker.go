// Package coverage accumulates which screens of the application under test
// were reached during a run and how often each action hint was offered.
package coverage

import (
	"encoding/json"
	"sort"

	"github.com/replayrig/replayrig/model"
)

// Tracker aggregates observed states against a fixed set of expected screens.
// Counts only ever grow.
type Tracker struct {
	expected  map[string]struct{}
	counts    map[string]int
	histogram map[string]int
}

// Summary is the result of a run's coverage.
type Summary struct {
	// Number of distinct screens observed
	DistinctScreens int `json:"distinct_screens"`
	// Observed screens, sorted
	ObservedScreens []string `json:"observed_screens"`
	// Expected screens that were never observed, sorted
	MissingScreens []string `json:"missing_screens"`
	// Observed screens that were not expected, sorted
	UnexpectedScreens []string `json:"unexpected_screens"`
	// |observed ∩ expected| / |expected|, 1.0 when nothing is expected
	Ratio float64 `json:"coverage_ratio"`
	// Visit count per screen
	ObservedCounts map[string]int `json:"observed_counts"`
	// Number of times each action hint was offered
	Histogram map[string]int `json:"action_hint_histogram"`
}

// NewTracker creates a tracker expecting the given screens.
func NewTracker(expected []string) *Tracker {
	t := &Tracker{
		expected:  make(map[string]struct{}, len(expected)),
		counts:    make(map[string]int),
		histogram: make(map[string]int),
	}
	for _, s := range expected {
		t.expected[s] = struct{}{}
	}
	return t
}

// Observe records one observed state. Unexpected screens are recorded as well.
func (t *Tracker) Observe(state model.GameState) {
	t.counts[state.ScreenID]++
	for _, h := range state.ActionHints {
		t.histogram[h]++
	}
}

// Count returns how many times screen was observed.
func (t *Tracker) Count(screen string) int {
	return t.counts[screen]
}

// ExpectedScreens returns the expected screens, sorted.
func (t *Tracker) ExpectedScreens() []string {
	return sortedKeys(t.expected)
}

// Summary computes the coverage summary of everything observed so far.
func (t *Tracker) Summary() Summary {
	s := Summary{
		DistinctScreens:   len(t.counts),
		ObservedScreens:   sortedKeys(t.counts),
		MissingScreens:    []string{},
		UnexpectedScreens: []string{},
		Ratio:             1.0,
		ObservedCounts:    copyCounts(t.counts),
		Histogram:         copyCounts(t.histogram),
	}

	hit := 0
	for _, screen := range t.ExpectedScreens() {
		if _, ok := t.counts[screen]; ok {
			hit++
		} else {
			s.MissingScreens = append(s.MissingScreens, screen)
		}
	}
	for _, screen := range s.ObservedScreens {
		if _, ok := t.expected[screen]; !ok {
			s.UnexpectedScreens = append(s.UnexpectedScreens, screen)
		}
	}
	if len(t.expected) > 0 {
		s.Ratio = float64(hit) / float64(len(t.expected))
	}
	return s
}

type trackerJSON struct {
	ExpectedScreens []string       `json:"expected_screens"`
	ObservedCounts  map[string]int `json:"observed_counts"`
	Histogram       map[string]int `json:"action_hint_histogram"`
}

// MarshalJSON implements json.Marshaler.
func (t *Tracker) MarshalJSON() ([]byte, error) {
	return json.Marshal(trackerJSON{
		ExpectedScreens: t.ExpectedScreens(),
		ObservedCounts:  t.counts,
		Histogram:       t.histogram,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tracker) UnmarshalJSON(data []byte) error {
	var raw trackerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	loaded := NewTracker(raw.ExpectedScreens)
	for k, v := range raw.ObservedCounts {
		loaded.counts[k] = v
	}
	for k, v := range raw.Histogram {
		loaded.histogram[k] = v
	}
	*t = *loaded
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
