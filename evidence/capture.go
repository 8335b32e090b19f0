// Package evidence assembles the artifacts attached to a bug report and
// publishes them to local or remote stores.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/replayrig/replayrig/browser"
	"github.com/replayrig/replayrig/model"
	"github.com/replayrig/replayrig/run"
)

// Source says where an evidence screenshot came from.
type Source int

const (
	SourceRecorder Source = iota
	SourceLastKnown
	SourceFresh
	SourcePlaceholder
)

func (s Source) String() string {
	switch s {
	case SourceRecorder:
		return "recorder"
	case SourceLastKnown:
		return "last-known"
	case SourceFresh:
		return "fresh"
	case SourcePlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// Result describes the evidence captured for one bug.
type Result struct {
	ScreenshotPath string
	StatePath      string
	VideoPath      string
	Source         Source
}

// Evidence converts the result into the bug report form.
func (r Result) Evidence() model.BugEvidence {
	return model.BugEvidence{
		ScreenshotPath: r.ScreenshotPath,
		StatePath:      r.StatePath,
		VideoPath:      r.VideoPath,
	}
}

// CaptureBugEvidence writes the screenshot and state snapshot for a bug.
//
// The screenshot is taken from the first source that works: the run's
// recorder, the last screenshot the agent wrote, a fresh screenshot from
// session, and finally a placeholder text file. session may be nil. Only
// failing to write the placeholder is returned as an error; a state snapshot
// that cannot be written is logged and leaves StatePath empty. The logger is
// taken from ctx.
func CaptureBugEvidence(ctx context.Context, rc *run.Context, session browser.Session, state model.GameState, label string) (Result, error) {
	logger := zerolog.Ctx(ctx)
	label = browser.SanitizeLabel(label)

	runDir, err := rc.RunDir()
	if err != nil {
		return Result{}, err
	}

	res := Result{VideoPath: rc.Meta.VideoPath}
	res.ScreenshotPath, res.Source, err = captureScreenshot(ctx, logger, rc, session, runDir, label)
	if err != nil {
		return Result{}, err
	}

	res.StatePath, err = writeState(runDir, label, state)
	if err != nil {
		logger.Warn().Err(err).Msg("State snapshot failed")
	}

	logger.Debug().
		Str("screenshot", res.ScreenshotPath).
		Str("source", res.Source.String()).
		Str("state", res.StatePath).
		Msg("Captured bug evidence")
	return res, nil
}

func writeState(runDir, label string, state model.GameState) (string, error) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	path := filepath.Join(runDir, label+"-state.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write state snapshot: %w", err)
	}
	return path, nil
}

func captureScreenshot(ctx context.Context, logger *zerolog.Logger, rc *run.Context, session browser.Session, runDir, label string) (string, Source, error) {
	if rc.Meta.Recorder != nil && session != nil {
		path, err := rc.Meta.Recorder.CaptureScreenshot(ctx, session, label)
		if err == nil {
			return path, SourceRecorder, nil
		}
		logger.Warn().Err(err).Msg("Recorder screenshot failed")
	}

	if last := rc.Meta.LastScreenshotPath; last != "" {
		if _, err := os.Stat(last); err == nil {
			return last, SourceLastKnown, nil
		}
	}

	if session != nil {
		path, err := session.Screenshot(ctx, filepath.Join(runDir, label+".png"))
		if err == nil {
			return path, SourceFresh, nil
		}
		logger.Warn().Err(err).Msg("Fresh screenshot failed")
	}

	placeholder := filepath.Join(runDir, label+"-screenshot-unavailable.txt")
	msg := fmt.Sprintf("screenshot unavailable for %s in run %s\n", label, rc.RunID)
	if err := os.WriteFile(placeholder, []byte(msg), 0644); err != nil {
		return "", SourcePlaceholder, fmt.Errorf("failed to write screenshot placeholder: %w", err)
	}
	return placeholder, SourcePlaceholder, nil
}
