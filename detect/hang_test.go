package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replayrig/replayrig/model"
)

func TestHangDetector_SameScreen(t *testing.T) {
	start := time.Unix(1700000000, 0)
	d := NewHangDetector()

	// the 9th identical observation is the 8th repeat
	for i := 0; i < 8; i++ {
		d.Observe(model.GameState{ScreenID: "TITLE"}, start.Add(time.Duration(i)*time.Second))
		_, ok := d.Check(start)
		require.False(t, ok, "observation %d", i)
	}
	d.Observe(model.GameState{ScreenID: "TITLE"}, start.Add(8*time.Second))

	reason, ok := d.Check(start)
	require.True(t, ok)
	require.Equal(t, `hang: screen "TITLE" repeated 9 steps`, reason)
	require.Equal(t, start, d.LastChange())
}

func TestHangDetector_ScreenChangeResets(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewHangDetector(WithMaxSameScreenSteps(2))

	for _, screen := range []string{"TITLE", "TITLE", "PLAY", "PLAY", "TITLE", "TITLE"} {
		d.Observe(model.GameState{ScreenID: screen}, now)
		_, ok := d.Check(now)
		require.False(t, ok)
	}

	d.Observe(model.GameState{ScreenID: "TITLE"}, now)
	reason, ok := d.Check(now)
	require.True(t, ok)
	require.Equal(t, `hang: screen "TITLE" repeated 3 steps`, reason)
}

func TestHangDetector_EmptyScreenNeverHangs(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewHangDetector(WithMaxSameScreenSteps(1))
	for i := 0; i < 5; i++ {
		d.Observe(model.GameState{}, now)
	}
	_, ok := d.Check(now)
	require.False(t, ok)
}

func TestHangDetector_Loading(t *testing.T) {
	start := time.Unix(1700000000, 0)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{"below", 5 * time.Second, ""},
		{"exactly at limit", 6 * time.Second, ""},
		{"above", 6500 * time.Millisecond, "hang: loading timeout 6.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewHangDetector()
			d.Observe(model.GameState{ScreenID: "LOADING", IsLoading: true}, start)
			d.Observe(model.GameState{ScreenID: "LOADING-2", IsLoading: true}, start.Add(time.Second))

			reason, ok := d.Check(start.Add(tt.elapsed))
			require.Equal(t, tt.want != "", ok)
			require.Equal(t, tt.want, reason)
		})
	}
}

func TestHangDetector_LoadingClears(t *testing.T) {
	start := time.Unix(1700000000, 0)
	d := NewHangDetector(WithMaxLoading(time.Second))

	d.Observe(model.GameState{ScreenID: "A", IsLoading: true}, start)
	d.Observe(model.GameState{ScreenID: "B"}, start.Add(500*time.Millisecond))
	_, ok := d.Check(start.Add(10 * time.Second))
	require.False(t, ok)

	d.Observe(model.GameState{ScreenID: "C", IsLoading: true}, start.Add(11*time.Second))
	_, ok = d.Check(start.Add(11500 * time.Millisecond))
	require.False(t, ok)
	_, ok = d.Check(start.Add(13 * time.Second))
	require.True(t, ok)
}

func TestHangDetector_CheckDoesNotMutate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewHangDetector(WithMaxSameScreenSteps(1))
	d.Observe(model.GameState{ScreenID: "X"}, now)
	d.Observe(model.GameState{ScreenID: "X"}, now)

	first, _ := d.Check(now)
	second, _ := d.Check(now)
	require.Equal(t, first, second)
}
