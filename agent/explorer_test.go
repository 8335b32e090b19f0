package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/replayrig/replayrig/browser"
	"github.com/replayrig/replayrig/browser/browsertest"
	"github.com/replayrig/replayrig/coverage"
	"github.com/replayrig/replayrig/model"
	"github.com/replayrig/replayrig/run"
	"github.com/replayrig/replayrig/vision"
)

func demoGame() *browsertest.Session {
	s := browsertest.NewSession("TITLE")
	s.Buttons["TITLE"] = []string{"Start"}
	s.Buttons["PLAY"] = []string{"Boost", "Fire", "Back"}
	s.Transitions["#startBtn"] = "PLAY"
	s.Transitions["#backBtn"] = "TITLE"
	return s
}

func newExplorer(t *testing.T, launcher browser.Launcher, extractor vision.Extractor, cfg ExplorerConfig) (*Explorer, *run.Context) {
	rc := &run.Context{RunID: "r1", ArtifactsRoot: t.TempDir()}
	cfg.Target = DefaultTarget()
	e := NewExplorer(zerolog.Nop(), launcher, extractor, rc, cfg)
	e.settle = 0
	e.loadWait = 0
	return e, rc
}

func TestExplorer_FollowsHints(t *testing.T) {
	session := demoGame()
	e, rc := newExplorer(t, &browsertest.Launcher{Session: session}, vision.Mock{}, ExplorerConfig{Steps: 2})

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	require.False(t, sum.Degraded)
	require.Equal(t, []string{"#startBtn", "#boostBtn"}, e.Actions())

	require.Equal(t, "r1", sum.RunID)
	require.Equal(t, filepath.Join(rc.ArtifactsRoot, "coverage", "r1.json"), sum.CoveragePath)
	require.Equal(t, map[string]int{"TITLE": 1, "PLAY": 1}, sum.ObservedCounts)
	require.Equal(t, []string{"CRASH"}, sum.MissingScreens)
	require.InDelta(t, 2.0/3.0, sum.Ratio, 1e-9)
	require.Equal(t, map[string]int{
		"click START": 1,
		"click BOOST": 1,
		"click FIRE":  1,
		"click BACK":  1,
	}, sum.Histogram)

	loaded, err := coverage.Load(sum.CoveragePath)
	require.NoError(t, err)
	require.Equal(t, sum.Summary, loaded.Summary())
}

func TestExplorer_TriesEachControlOnceThenRandom(t *testing.T) {
	session := demoGame()
	session.Transitions["#backBtn"] = "PLAY"
	e, _ := newExplorer(t, &browsertest.Launcher{Session: session}, vision.Mock{}, ExplorerConfig{Steps: 7, Seed: DefaultExplorerSeed})

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	actions := e.Actions()
	require.Len(t, actions, 7)
	// every hinted control once; once back was tried and PLAY keeps
	// repeating, random clicks
	require.Equal(t, []string{"#startBtn", "#boostBtn", "#fireBtn", "#backBtn"}, actions[:4])
	for _, a := range actions[4:] {
		require.Regexp(t, `^\d+,\d+$`, a)
	}
}

type fixedVision struct {
	payload map[string]any
}

func (f fixedVision) Extract(context.Context, string, []byte, map[string]any) (map[string]any, error) {
	return f.payload, nil
}

func TestExplorer_TrustsNamedVisionScreen(t *testing.T) {
	session := demoGame()
	extractor := fixedVision{payload: map[string]any{
		"screen_id":    "SETTINGS",
		"summary":      "settings",
		"action_hints": []any{"click RESET"},
		"ui_elements":  []any{},
		"is_loading":   false,
	}}
	e, _ := newExplorer(t, &browsertest.Launcher{Session: session}, extractor, ExplorerConfig{Steps: 1})

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"SETTINGS"}, sum.UnexpectedScreens)
	require.Equal(t, []string{"#resetBtn"}, e.Actions())
}

func TestExplorer_LoadingTakesNoAction(t *testing.T) {
	session := demoGame()
	extractor := fixedVision{payload: map[string]any{
		"screen_id":    "LOADING",
		"summary":      "spinner",
		"action_hints": []any{},
		"ui_elements":  []any{},
		"is_loading":   true,
	}}
	e, _ := newExplorer(t, &browsertest.Launcher{Session: session}, extractor, ExplorerConfig{Steps: 3})

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, e.Actions())
	require.Empty(t, session.ActionLog())
	require.Equal(t, 3, sum.ObservedCounts["LOADING"])
}

func TestExplorer_DegradedFallback(t *testing.T) {
	tests := []struct {
		name     string
		launcher func() browser.Launcher
	}{
		{
			name: "start fails",
			launcher: func() browser.Launcher {
				return &browsertest.Launcher{Err: browser.ErrNavigation}
			},
		},
		{
			name: "screenshot fails",
			launcher: func() browser.Launcher {
				s := demoGame()
				s.ScreenshotErr = errors.New("target closed")
				return &browsertest.Launcher{Session: s}
			},
		},
		{
			name: "click fails",
			launcher: func() browser.Launcher {
				s := demoGame()
				s.ClickErrs["#startBtn"] = errors.New("detached")
				return &browsertest.Launcher{Session: s}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rc := newExplorer(t, tt.launcher(), vision.Mock{}, ExplorerConfig{Steps: 3})

			sum, err := e.Run(context.Background())
			require.NoError(t, err)
			require.True(t, sum.Degraded)
			require.NotEmpty(t, sum.Error)
			require.Contains(t, sum.ObservedScreens, "TITLE")
			require.Contains(t, sum.ObservedScreens, "PLAY")
			require.GreaterOrEqual(t, sum.Histogram["click BOOST"], 1)
			require.FileExists(t, filepath.Join(rc.ArtifactsRoot, "coverage", "r1.json"))
		})
	}
}

// cancellingVision cancels the run on its second call and keeps reporting
// the same screen.
type cancellingVision struct {
	cancel context.CancelFunc
	calls  *int
}

func (c cancellingVision) Extract(context.Context, string, []byte, map[string]any) (map[string]any, error) {
	*c.calls++
	if *c.calls == 2 {
		c.cancel()
	}
	return map[string]any{
		"screen_id":    "SETTINGS",
		"summary":      "settings",
		"action_hints": []any{},
		"ui_elements":  []any{},
		"is_loading":   false,
	}, nil
}

func TestExplorer_CancelKeepsObservedCoverage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	session := browsertest.NewSession("SETTINGS")
	e, rc := newExplorer(t, &browsertest.Launcher{Session: session}, cancellingVision{cancel: cancel, calls: &calls}, ExplorerConfig{Steps: 10})

	sum, err := e.Run(ctx)
	require.NoError(t, err)
	require.False(t, sum.Degraded)
	require.Contains(t, sum.Error, context.Canceled.Error())
	require.Equal(t, 2, calls)
	require.Equal(t, map[string]int{"SETTINGS": 2}, sum.ObservedCounts)
	require.NotContains(t, sum.ObservedScreens, "TITLE")
	require.NotContains(t, sum.ObservedScreens, "PLAY")

	path := filepath.Join(rc.ArtifactsRoot, "coverage", "r1.json")
	require.Equal(t, path, sum.CoveragePath)
	loaded, err := coverage.Load(path)
	require.NoError(t, err)
	require.Equal(t, sum.Summary, loaded.Summary())
}

func TestExplorer_OutPathAndProfile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "coverage.json")
	e, rc := newExplorer(t, &browsertest.Launcher{Session: demoGame()}, nil, ExplorerConfig{Steps: 1, OutPath: out})

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, out, sum.CoveragePath)
	require.FileExists(t, out)

	require.Equal(t, filepath.Join(rc.ArtifactsRoot, "runs", "r1", "coverage.pb.gz"), sum.ProfilePath)
	f, err := os.Open(sum.ProfilePath)
	require.NoError(t, err)
	defer f.Close()
	prof, err := profile.Parse(f)
	require.NoError(t, err)
	require.NotEmpty(t, prof.Sample)
}

func TestReconcile(t *testing.T) {
	snap := domSnapshot{screen: "PLAY", labels: []string{"Boost"}}

	tests := []struct {
		name       string
		state      model.GameState
		wantScreen string
		wantHints  []string
	}{
		{"mock", model.GameState{ScreenID: "mock-1234"}, "PLAY", []string{"click BOOST"}},
		{"vision error", model.GameState{ScreenID: model.ScreenVisionError}, "PLAY", []string{"click BOOST"}},
		{"parse error", model.GameState{ScreenID: model.ScreenParseError}, "PLAY", []string{"click BOOST"}},
		{"empty", model.GameState{}, "PLAY", []string{"click BOOST"}},
		{"lowercase unknown", model.GameState{ScreenID: "unknown"}, "PLAY", []string{"click BOOST"}},
		{"named", model.GameState{ScreenID: "PAUSE", ActionHints: []string{"click BACK"}}, "PAUSE", []string{"click BACK"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcile(tt.state, snap)
			require.Equal(t, tt.wantScreen, got.ScreenID)
			require.Equal(t, tt.wantHints, got.ActionHints)
		})
	}

	got := reconcile(model.GameState{ScreenID: "mock-1"}, domSnapshot{})
	require.Equal(t, "mock-1", got.ScreenID)
}
