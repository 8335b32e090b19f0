package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/replayrig/replayrig/browser"
	"github.com/replayrig/replayrig/coverage"
	"github.com/replayrig/replayrig/model"
	"github.com/replayrig/replayrig/run"
	"github.com/replayrig/replayrig/vision"
)

const (
	DefaultExplorerSeed  = 7
	DefaultExplorerSteps = 12

	loadingWait  = 200 * time.Millisecond
	actionSettle = 100 * time.Millisecond
)

// DefaultExpectedScreens are the screens the demo game is known to have.
var DefaultExpectedScreens = []string{"TITLE", "PLAY", "CRASH"}

// ExplorerConfig configures an exploration run.
type ExplorerConfig struct {
	Target          Target
	Headless        bool
	Steps           int
	ExpectedScreens []string
	Seed            int64
	// OutPath overrides where coverage is saved.
	OutPath string
}

// ExplorerSummary is the coverage summary of a run plus where it was saved.
type ExplorerSummary struct {
	coverage.Summary
	RunID        string `json:"run_id"`
	CoveragePath string `json:"coverage_path"`
	ProfilePath  string `json:"profile_path,omitempty"`
	// Degraded is set when the live session failed and fallback observations were used.
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// Explorer navigates the target by following vision and DOM hints, trying
// every control once, and records screen coverage.
type Explorer struct {
	logger   zerolog.Logger
	launcher browser.Launcher
	vision   vision.Extractor
	rc       *run.Context
	cfg      ExplorerConfig
	rng      *rand.Rand

	tracker  *coverage.Tracker
	tried    map[string]struct{}
	actions  []string
	settle   time.Duration
	loadWait time.Duration
}

func NewExplorer(logger zerolog.Logger, launcher browser.Launcher, extractor vision.Extractor, rc *run.Context, cfg ExplorerConfig) *Explorer {
	if cfg.Steps <= 0 {
		cfg.Steps = DefaultExplorerSteps
	}
	if len(cfg.ExpectedScreens) == 0 {
		cfg.ExpectedScreens = DefaultExpectedScreens
	}
	if extractor == nil {
		extractor = vision.Mock{}
	}

	return &Explorer{
		logger:   logger.With().Str("run_id", rc.RunID).Str("agent", "explorer").Logger(),
		launcher: launcher,
		vision:   extractor,
		rc:       rc,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		tracker:  coverage.NewTracker(cfg.ExpectedScreens),
		tried:    make(map[string]struct{}),
		settle:   actionSettle,
		loadWait: loadingWait,
	}
}

// Tracker returns the coverage tracker of the run.
func (e *Explorer) Tracker() *coverage.Tracker {
	return e.tracker
}

// Actions returns the actions taken, as selectors or "x,y" coordinates.
func (e *Explorer) Actions() []string {
	return append([]string(nil), e.actions...)
}

// Run explores the target and saves coverage. Session failures are not
// returned: they degrade the run to fallback observations. Only failing to
// persist coverage is an error.
func (e *Explorer) Run(ctx context.Context) (ExplorerSummary, error) {
	summary := ExplorerSummary{RunID: e.rc.RunID}

	if err := e.explore(ctx); err != nil {
		summary.Error = err.Error()
		// a cancelled run keeps what it actually observed
		if errors.Is(err, context.Canceled) {
			e.logger.Warn().Int("actions", len(e.actions)).Msg("Exploration cancelled, saving partial coverage")
		} else {
			e.logger.Warn().Err(err).Msg("Live exploration failed, using fallback observations")
			e.injectFallback(err)
			summary.Degraded = true
		}
	}

	path := e.cfg.OutPath
	if path == "" {
		var err error
		if path, err = e.rc.CoveragePath(); err != nil {
			return summary, err
		}
	}
	if _, err := coverage.Save(path, e.tracker); err != nil {
		return summary, err
	}
	summary.CoveragePath = path

	if profilePath, err := e.writeProfile(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to write coverage profile")
	} else {
		summary.ProfilePath = profilePath
	}

	summary.Summary = e.tracker.Summary()
	e.logger.Info().
		Int("distinct_screens", summary.DistinctScreens).
		Float64("coverage_ratio", summary.Ratio).
		Bool("degraded", summary.Degraded).
		Str("path", path).
		Msg("Coverage saved")
	return summary, nil
}

func (e *Explorer) writeProfile() (string, error) {
	dir, err := e.rc.RunDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "coverage.pb.gz")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create coverage profile: %w", err)
	}
	defer f.Close()

	if err := coverage.WriteProfile(f, e.tracker); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Explorer) injectFallback(cause error) {
	e.tracker.Observe(model.GameState{
		ScreenID:    "TITLE",
		Summary:     "Fallback explorer state",
		ActionHints: []string{"click START"},
		UIElements:  []model.UIElement{},
		Warnings:    []string{fmt.Sprintf("explorer fallback: %v", cause)},
	})
	e.tracker.Observe(model.GameState{
		ScreenID:    "PLAY",
		Summary:     "Fallback explorer state",
		ActionHints: []string{"click BOOST", "click FIRE"},
		UIElements:  []model.UIElement{},
		Warnings:    []string{"generated without live browser session"},
	})
}

func (e *Explorer) explore(ctx context.Context) error {
	session, err := e.launcher.Start(ctx, e.cfg.Target.URL, browser.StartOptions{
		Headless: e.cfg.Headless,
		Viewport: e.cfg.Target.Viewport,
	})
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to close browser session")
		}
	}()

	dir, err := e.rc.ScreenshotsDir()
	if err != nil {
		return err
	}

	previous := ""
	repeats := 0
	for step := 0; step < e.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		shot, err := session.Screenshot(ctx, filepath.Join(dir, fmt.Sprintf("explorer-%03d.png", step)))
		if err != nil {
			return fmt.Errorf("screenshot at step %d: %w", step, err)
		}
		e.rc.Meta.LastScreenshotPath = shot

		state := vision.StateFromScreenshot(ctx, e.vision, shot)
		snap := readDOM(ctx, session, e.cfg.Target)
		state = reconcile(state, snap)
		e.tracker.Observe(state)

		if state.ScreenID == previous {
			repeats++
		} else {
			repeats = 0
		}
		previous = state.ScreenID

		if state.IsLoading {
			e.logger.Debug().Int("step", step).Str("screen", state.ScreenID).Msg("Screen loading")
			if err := sleepContext(ctx, e.loadWait); err != nil {
				return err
			}
			continue
		}

		action := e.choose(state, repeats > 2)
		e.logger.Debug().Int("step", step).Str("screen", state.ScreenID).Str("action", action.String()).Msg("Step")
		if err := action.perform(ctx, session); err != nil {
			return fmt.Errorf("action %s at step %d: %w", action, step, err)
		}
		e.actions = append(e.actions, action.String())

		if err := sleepContext(ctx, e.settle); err != nil {
			return err
		}
	}
	return nil
}

// reconcile prefers the DOM screen id when vision could not name the screen,
// and falls back to DOM buttons for hints.
func reconcile(state model.GameState, snap domSnapshot) model.GameState {
	if snap.screen != "" && untrustedScreen(state.ScreenID) {
		state.ScreenID = snap.screen
	}
	if len(state.ActionHints) == 0 && len(snap.labels) > 0 {
		labels := make([]string, len(snap.labels))
		for i, l := range snap.labels {
			labels[i] = strings.ToUpper(l)
		}
		state.ActionHints = clickHints(labels)
	}
	return state
}

func untrustedScreen(id string) bool {
	switch id {
	case "", model.ScreenVisionError, model.ScreenParseError, "unknown":
		return true
	}
	return strings.HasPrefix(id, "mock-")
}

// explorerAction is either a selector click or a coordinate click.
type explorerAction struct {
	selector string
	x, y     int
}

func (a explorerAction) String() string {
	if a.selector != "" {
		return a.selector
	}
	return fmt.Sprintf("%d,%d", a.x, a.y)
}

func (a explorerAction) perform(ctx context.Context, s browser.Session) error {
	if a.selector != "" {
		return s.Click(ctx, a.selector)
	}
	return s.ClickAt(ctx, a.x, a.y)
}

func (e *Explorer) choose(state model.GameState, repeated bool) explorerAction {
	for _, hint := range state.ActionHints {
		sel, ok := e.cfg.Target.SelectorForHint(hint)
		if !ok {
			continue
		}
		if _, done := e.tried[sel]; !done {
			e.tried[sel] = struct{}{}
			return explorerAction{selector: sel}
		}
	}

	back, hasBack := e.cfg.Target.Selector(ControlBack)
	if hasBack {
		if _, triedBack := e.tried[back]; repeated && triedBack {
			return e.randomClick()
		}
		return explorerAction{selector: back}
	}
	return e.randomClick()
}

func (e *Explorer) randomClick() explorerAction {
	return explorerAction{
		x: 80 + e.rng.Intn(601),
		y: 120 + e.rng.Intn(401),
	}
}
