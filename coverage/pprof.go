package coverage

// pprof.go exports a tracker as a pprof profile so coverage can be browsed
// with `go tool pprof` (flame graph of screens and offered hints).

import (
	"fmt"
	"io"
	"time"

	"github.com/google/pprof/profile"
)

const (
	screensRoot = "screens"
	hintsRoot   = "hints"
)

// profileBuilder interns functions and locations by name.
type profileBuilder struct {
	profile   *profile.Profile
	locations map[string]*profile.Location
	nextID    uint64
}

func (b *profileBuilder) location(name string) *profile.Location {
	if loc, ok := b.locations[name]; ok {
		return loc
	}

	fn := &profile.Function{
		ID:         b.nextID,
		Name:       name,
		SystemName: name,
	}
	loc := &profile.Location{
		ID:   b.nextID,
		Line: []profile.Line{{Function: fn}},
	}
	b.nextID++

	b.profile.Function = append(b.profile.Function, fn)
	b.profile.Location = append(b.profile.Location, loc)
	b.locations[name] = loc
	return loc
}

// Profile converts the tracker into a pprof profile with two sample types:
// visits per screen and offers per action hint.
func (t *Tracker) Profile(now time.Time) *profile.Profile {
	b := &profileBuilder{
		profile: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "visits", Unit: "count"},
				{Type: "hints", Unit: "count"},
			},
			PeriodType: &profile.ValueType{Type: "observations", Unit: "count"},
			Period:     1,
			TimeNanos:  now.UnixNano(),
		},
		locations: make(map[string]*profile.Location),
		nextID:    1,
	}

	for _, screen := range sortedKeys(t.counts) {
		b.profile.Sample = append(b.profile.Sample, &profile.Sample{
			Location: []*profile.Location{b.location("screen " + screen), b.location(screensRoot)},
			Value:    []int64{int64(t.counts[screen]), 0},
		})
	}
	for _, hint := range sortedKeys(t.histogram) {
		b.profile.Sample = append(b.profile.Sample, &profile.Sample{
			Location: []*profile.Location{b.location("hint " + hint), b.location(hintsRoot)},
			Value:    []int64{0, int64(t.histogram[hint])},
		})
	}
	return b.profile
}

// WriteProfile writes the gzipped pprof encoding of the tracker to w.
func WriteProfile(w io.Writer, t *Tracker) error {
	prof := t.Profile(time.Now())
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid coverage profile: %w", err)
	}
	if err := prof.Write(w); err != nil {
		return fmt.Errorf("failed to write coverage profile: %w", err)
	}
	return nil
}
