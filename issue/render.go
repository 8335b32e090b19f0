// Package issue renders bug reports as issues and files them with a tracker.
package issue

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/replayrig/replayrig/evidence"
	"github.com/replayrig/replayrig/model"
)

const maxTitleReason = 80

// Environment describes where the bug was observed.
type Environment struct {
	Browser string
	OS      string
	// ReproCommand is the argv that produced the run, if known.
	ReproCommand []string
}

// DefaultEnvironment describes the local machine.
func DefaultEnvironment() Environment {
	return Environment{
		Browser: "Chromium (go-rod)",
		OS:      runtime.GOOS,
	}
}

// Title returns "[<DETECTOR>] <reason>" with the reason cut to 80 characters.
func Title(bug model.BugReport) string {
	detector := string(bug.Detector)
	if detector == "" {
		detector = "bug"
	}
	reason := []rune(reasonOf(bug))
	if len(reason) > maxTitleReason {
		reason = reason[:maxTitleReason]
	}
	return fmt.Sprintf("[%s] %s", strings.ToUpper(detector), string(reason))
}

func reasonOf(bug model.BugReport) string {
	reason := strings.TrimSpace(bug.Reason)
	if reason == "" {
		return "Unexpected behavior"
	}
	return reason
}

// Render builds the issue title and markdown body for a bug.
func Render(bug model.BugReport, refs []evidence.Ref, env Environment) (string, string) {
	detector := string(bug.Detector)
	if detector == "" {
		detector = "bug"
	}
	reason := reasonOf(bug)
	runID := bug.RunID
	if runID == "" {
		runID = "unknown-run"
	}

	var b strings.Builder
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Detector: `%s`\n", detector)
	fmt.Fprintf(&b, "- Reason: %s\n", reason)
	fmt.Fprintf(&b, "- Run ID: `%s`\n", runID)
	if bug.LastState.ScreenID != "" {
		fmt.Fprintf(&b, "- Last screen: `%s`\n", bug.LastState.ScreenID)
	}
	b.WriteString("\n")

	b.WriteString("## Steps to Reproduce\n")
	if len(bug.ReproSteps) == 0 {
		b.WriteString("1. Reproduction steps unavailable\n")
	}
	for i, step := range bug.ReproSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	if len(env.ReproCommand) > 0 {
		b.WriteString("\nReplay with:\n```\n")
		b.WriteString(shellescape.QuoteCommand(env.ReproCommand))
		b.WriteString("\n```\n")
	}
	b.WriteString("\n")

	b.WriteString("## Expected Behavior\n")
	b.WriteString("Game should continue without crashing, hanging, or fatal console errors.\n\n")

	b.WriteString("## Actual Behavior\n")
	b.WriteString(reason)
	b.WriteString("\n\n")

	b.WriteString("## Evidence\n")
	written := 0
	for _, ref := range refs {
		loc := ref.Location()
		if loc == "" {
			continue
		}
		kind := ref.Kind
		if kind == "" {
			kind = "evidence"
		}
		fmt.Fprintf(&b, "- %s: %s\n", kind, loc)
		written++
	}
	if written == 0 {
		b.WriteString("- No evidence provided\n")
	}
	b.WriteString("\n")

	b.WriteString("## Environment\n")
	fmt.Fprintf(&b, "- Browser: %s\n", env.Browser)
	fmt.Fprintf(&b, "- OS: %s\n", env.OS)
	fmt.Fprintf(&b, "- Run ID: `%s`\n", runID)

	return Title(bug), b.String()
}

// EvidenceRefs publishes the evidence files of a bug through store. A
// recorded video path must exist on disk.
func EvidenceRefs(ctx context.Context, store evidence.Store, bug model.BugReport) ([]evidence.Ref, error) {
	ev := bug.Evidence
	if ev.VideoPath != "" {
		if _, err := os.Stat(ev.VideoPath); err != nil {
			return nil, fmt.Errorf("video_path does not exist: %s", ev.VideoPath)
		}
	}

	var refs []evidence.Ref
	for _, item := range []struct{ kind, path string }{
		{"screenshot", ev.ScreenshotPath},
		{"state", ev.StatePath},
		{"video", ev.VideoPath},
	} {
		if item.path == "" {
			continue
		}
		ref, err := store.Publish(ctx, item.path, item.kind)
		if err != nil {
			return nil, fmt.Errorf("failed to publish %s evidence: %w", item.kind, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
