package agent

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/replayrig/replayrig/browser"
	"github.com/replayrig/replayrig/detect"
	"github.com/replayrig/replayrig/evidence"
	"github.com/replayrig/replayrig/model"
	"github.com/replayrig/replayrig/run"
)

const (
	DefaultChaosSeed      = 13
	DefaultChaosStepDelay = 80 * time.Millisecond

	chaosEvidenceLabel = "chaos-trigger"
	spamKeys           = "!@#$%^&*"
)

// ChaosState is the lifecycle of a chaos run.
type ChaosState int

const (
	ChaosIdle ChaosState = iota
	ChaosRunning
	ChaosTriggered
	ChaosExhausted
)

func (s ChaosState) String() string {
	switch s {
	case ChaosIdle:
		return "idle"
	case ChaosRunning:
		return "running"
	case ChaosTriggered:
		return "triggered"
	case ChaosExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ChaosConfig configures a chaos run.
type ChaosConfig struct {
	Target      Target
	Headless    bool
	RecordVideo bool
	// Steps bounds the number of actions; zero means one pass of the repertoire.
	Steps int
	// Duration bounds wall-clock time; zero means no limit.
	Duration time.Duration
	Seed     int64
	// StepDelay is waited between steps; zero means DefaultChaosStepDelay and
	// a negative value disables the delay.
	StepDelay          time.Duration
	MaxSameScreenSteps int
	MaxLoading         time.Duration
	FatalPatterns      []string
}

// outcomeKind classifies what happened to one part of a step.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeScreenshotFailed
	outcomeActionFailed
)

type stepOutcome struct {
	kind outcomeKind
	err  error
}

type chaosAction struct {
	name string
	do   func(ctx context.Context, s browser.Session) error
}

// Chaos cycles a fixed repertoire of adversarial inputs and stops at the
// first crash or hang.
type Chaos struct {
	logger   zerolog.Logger
	launcher browser.Launcher
	rc       *run.Context
	cfg      ChaosConfig
	rng      *rand.Rand
	crash    *detect.CrashDetector
	hang     *detect.HangDetector
	now      func() time.Time
	recorder *browser.Recorder

	state ChaosState
	steps []string
}

func NewChaos(logger zerolog.Logger, launcher browser.Launcher, rc *run.Context, cfg ChaosConfig) *Chaos {
	if cfg.StepDelay == 0 {
		cfg.StepDelay = DefaultChaosStepDelay
	}

	var hangOpts []detect.HangOption
	if cfg.MaxSameScreenSteps > 0 {
		hangOpts = append(hangOpts, detect.WithMaxSameScreenSteps(cfg.MaxSameScreenSteps))
	}
	if cfg.MaxLoading > 0 {
		hangOpts = append(hangOpts, detect.WithMaxLoading(cfg.MaxLoading))
	}

	return &Chaos{
		logger:   logger.With().Str("run_id", rc.RunID).Str("agent", "chaos").Logger(),
		launcher: launcher,
		rc:       rc,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		crash:    detect.NewCrashDetector(cfg.FatalPatterns...),
		hang:     detect.NewHangDetector(hangOpts...),
		now:      time.Now,
	}
}

// State returns where the run is in its lifecycle.
func (c *Chaos) State() ChaosState {
	return c.state
}

// ReproSteps returns the action names executed so far.
func (c *Chaos) ReproSteps() []string {
	return append([]string(nil), c.steps...)
}

// CrashReasons exposes every crash reason observed during the run.
func (c *Chaos) CrashReasons() []string {
	return c.crash.Reasons()
}

func (c *Chaos) click(label string) func(ctx context.Context, s browser.Session) error {
	return func(ctx context.Context, s browser.Session) error {
		return c.clickTimes(ctx, s, label, 1)
	}
}

func (c *Chaos) clickTimes(ctx context.Context, s browser.Session, label string, n int) error {
	sel, ok := c.cfg.Target.Selector(label)
	if !ok {
		return fmt.Errorf("target has no %s control", label)
	}
	for i := 0; i < n; i++ {
		if err := s.Click(ctx, sel); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chaos) repertoire() []chaosAction {
	return []chaosAction{
		{name: "START", do: c.click(ControlStart)},
		{name: "BOOST x7", do: func(ctx context.Context, s browser.Session) error {
			return c.clickTimes(ctx, s, ControlBoost, 7)
		}},
		{name: "FIRE", do: c.click(ControlFire)},
		{name: "RAPID BOOST BURST", do: func(ctx context.Context, s browser.Session) error {
			return c.clickTimes(ctx, s, ControlBoost, 6)
		}},
		{name: "RANDOM CLICK", do: func(ctx context.Context, s browser.Session) error {
			x := 50 + c.rng.Intn(651)
			y := 80 + c.rng.Intn(481)
			return s.ClickAt(ctx, x, y)
		}},
		{name: "SPAM KEYS", do: func(ctx context.Context, s browser.Session) error {
			return s.Type(ctx, strings.Repeat(spamKeys, 8))
		}},
		{name: "ESCAPE/BACK", do: func(ctx context.Context, s browser.Session) error {
			if err := s.Press(ctx, browser.KeyEscape); err != nil {
				return err
			}
			return c.clickTimes(ctx, s, ControlBack, 1)
		}},
	}
}

// Run drives the target until an oracle fires or a budget runs out. It
// returns the path of the persisted bug report, or "" when nothing was found.
func (c *Chaos) Run(ctx context.Context) (string, error) {
	actions := c.repertoire()
	limit := c.cfg.Steps
	if limit <= 0 {
		limit = len(actions)
	}

	c.recorder = browser.NewRecorder(c.logger, c.rc)
	c.rc.Meta.Recorder = c.recorder

	session, err := c.launcher.Start(ctx, c.cfg.Target.URL, browser.StartOptions{
		Headless: c.cfg.Headless,
		Viewport: c.cfg.Target.Viewport,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close browser session")
		}
	}()

	if err := c.crash.Attach(session); err != nil {
		return "", err
	}
	if c.cfg.RecordVideo {
		if err := c.recorder.Start(ctx, session); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to start recording")
		}
	}

	c.state = ChaosRunning
	start := c.now()
	c.logger.Info().Str("url", c.cfg.Target.URL).Int("steps", limit).Dur("duration", c.cfg.Duration).Msg("Chaos run started")

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if c.cfg.Duration > 0 && c.now().Sub(start) > c.cfg.Duration {
			break
		}
		if step >= limit {
			break
		}

		action := actions[step%len(actions)]
		c.steps = append(c.steps, action.name)

		if out := c.screenshot(ctx, session, step); out.kind == outcomeScreenshotFailed {
			c.logger.Warn().Err(out.err).Int("step", step).Msg("Screenshot failed")
		}

		if out := c.act(ctx, session, action); out.kind == outcomeActionFailed {
			c.logger.Debug().Err(out.err).Str("action", action.name).Msg("Action failed")
			c.crash.ObserveException(out.err)
		}

		state := c.observe(ctx, session)
		now := c.now()
		c.hang.Observe(state, now)
		c.logger.Debug().Int("step", step).Str("action", action.name).Str("screen", state.ScreenID).Msg("Step")

		detector, reason, found := c.verdict(now)
		if found {
			c.state = ChaosTriggered
			return c.report(ctx, session, detector, reason, state)
		}

		if err := sleepContext(ctx, c.cfg.StepDelay); err != nil {
			return "", err
		}
	}

	c.state = ChaosExhausted
	c.logger.Info().Int("steps", len(c.steps)).Msg("Chaos run finished without findings")
	return "", nil
}

func (c *Chaos) screenshot(ctx context.Context, s browser.Session, step int) stepOutcome {
	dir, err := c.rc.ScreenshotsDir()
	if err != nil {
		return stepOutcome{kind: outcomeScreenshotFailed, err: err}
	}
	path, err := s.Screenshot(ctx, filepath.Join(dir, fmt.Sprintf("chaos-step-%03d.png", step)))
	if err != nil {
		return stepOutcome{kind: outcomeScreenshotFailed, err: err}
	}
	c.rc.Meta.LastScreenshotPath = path
	return stepOutcome{kind: outcomeOK}
}

func (c *Chaos) act(ctx context.Context, s browser.Session, a chaosAction) stepOutcome {
	if err := a.do(ctx, s); err != nil {
		return stepOutcome{kind: outcomeActionFailed, err: err}
	}
	return stepOutcome{kind: outcomeOK}
}

func (c *Chaos) observe(ctx context.Context, s browser.Session) model.GameState {
	snap := readDOM(ctx, s, c.cfg.Target)
	screen := snap.screen
	if snap.screenErr != nil {
		screen = model.ScreenUnknown
	}
	return model.GameState{
		ScreenID:    screen,
		Summary:     "Chaos observed " + screen,
		ActionHints: clickHints(snap.labels),
		UIElements:  buttonElements(snap.labels),
		Warnings:    []string{},
	}
}

// verdict evaluates both oracles. A crash always wins over a hang.
func (c *Chaos) verdict(now time.Time) (model.Detector, string, bool) {
	if reason, ok := c.crash.Check(); ok {
		return model.DetectorCrash, reason, true
	}
	if reason, ok := c.hang.Check(now); ok {
		return model.DetectorHang, reason, true
	}
	return "", "", false
}

func (c *Chaos) report(ctx context.Context, s browser.Session, detector model.Detector, reason string, state model.GameState) (string, error) {
	c.logger.Info().Str("detector", string(detector)).Str("reason", reason).Msg("Anomaly detected")

	if c.cfg.RecordVideo {
		path, err := c.recorder.Finalize(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to finalize recording")
		} else {
			c.rc.Meta.VideoPath = path
		}
	}

	res, err := evidence.CaptureBugEvidence(c.logger.WithContext(ctx), c.rc, s, state, chaosEvidenceLabel)
	if err != nil {
		return "", fmt.Errorf("failed to capture evidence: %w", err)
	}

	bug := model.NewBugReport(c.rc.RunID, detector, reason, state, c.steps, res.Evidence())
	dir, err := c.rc.BugsDir()
	if err != nil {
		return "", err
	}
	path, err := model.SaveBugReport(dir, bug)
	if err != nil {
		return "", err
	}

	c.logger.Info().Str("bug_id", bug.BugID).Str("path", path).Str("screenshot_source", res.Source.String()).Msg("Bug report saved")
	return path, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
