package cli

// This file contains the view command for displaying a recorded run.

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/replayrig/replayrig/coverage"
	"github.com/replayrig/replayrig/history"
	"github.com/replayrig/replayrig/model"
)

const pprofFlag = "--pprof"

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

// extractPprofFlag removes --pprof (or -pprof) ahead of any "--" separator.
func extractPprofFlag(in []string) ([]string, bool) {
	out := make([]string, 0, len(in))
	found := false
	for i, arg := range in {
		if arg == "--" {
			out = append(out, in[i:]...)
			break
		}
		if arg == pprofFlag || arg == "-pprof" {
			found = true
			continue
		}
		out = append(out, arg)
	}
	return out, found
}

func parseViewArgs(in []string) (idArg string, pprofArgs []string) {
	if len(in) == 0 {
		return "0", nil
	}

	// If first arg is "--", use default "0" and rest are pprof args
	if in[0] == "--" {
		return "0", in[1:]
	}

	// A negative index is "-" followed by only digits, anything else
	// starting with "-" is a pprof flag
	if len(in[0]) > 1 && in[0][0] == '-' {
		if _, err := strconv.ParseInt(in[0], 10, 64); err != nil {
			return "0", in
		}
	}

	return in[0], removeFirstDashDash(in[1:])
}

func (a *App) view(ctx *cli.Context) error {
	args, openPprof := extractPprofFlag(ctx.Args().Slice())
	arg, pprofArgs := parseViewArgs(args)
	if len(pprofArgs) > 0 {
		openPprof = true
	}

	entries, err := history.LoadEntries(a.logger, history.RunsRoot(artifactsRoot(ctx)))
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	entry, err := history.Find(entries, arg)
	if err != nil {
		return err
	}

	a.displayRun(entry)

	if openPprof {
		return a.displayProfile(ctx.Context, entry, pprofArgs)
	}
	if entry.Run.BugPath != "" {
		return a.displayBug(entry.Run.BugPath)
	}
	if entry.Run.CoveragePath != "" {
		return a.displayCoverage(entry.Run.CoveragePath)
	}

	fmt.Fprintln(a.out, "Nothing to display (no bug report or coverage)")
	fmt.Fprintf(a.out, "Run directory: %s\n", entry.FullPath)
	return nil
}

func (a *App) displayRun(entry *history.Entry) {
	r := entry.Run

	fmt.Fprintf(a.out, "=== %s run: %s ===\n", r.Mode, r.ID)
	fmt.Fprintf(a.out, "Time: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "Duration: %s\n", r.Duration)
	fmt.Fprintf(a.out, "Exit Code: %d\n", r.ExitCode)
	if r.TargetURL != "" {
		fmt.Fprintf(a.out, "Target: %s\n", r.TargetURL)
	}
	if r.Git != nil && r.Git.Commit != "" {
		fmt.Fprintf(a.out, "Git Commit: %s", shortCommit(r.Git.Commit))
		if r.Git.Branch != "" {
			fmt.Fprintf(a.out, " (%s)", r.Git.Branch)
		}
		fmt.Fprintln(a.out)
	}
	if r.Error != "" {
		fmt.Fprintf(a.out, "Error: %s\n", r.Error)
	}
	fmt.Fprintln(a.out)
}

func (a *App) displayBug(path string) error {
	bug, err := model.LoadBugReport(path)
	if err != nil {
		return fmt.Errorf("failed to load bug report: %w", err)
	}

	fmt.Fprintf(a.out, "Bug: %s (%s)\n", bug.BugID, path)
	fmt.Fprintf(a.out, "Detector: %s\n", bug.Detector)
	fmt.Fprintf(a.out, "Reason: %s\n", bug.Reason)
	fmt.Fprintf(a.out, "Last Screen: %s\n", bug.LastState.ScreenID)
	fmt.Fprintln(a.out, "Repro Steps:")
	for i, step := range bug.ReproSteps {
		fmt.Fprintf(a.out, "  %d. %s\n", i+1, step)
	}
	for _, e := range []struct{ name, path string }{
		{"Screenshot", bug.Evidence.ScreenshotPath},
		{"State", bug.Evidence.StatePath},
		{"Video", bug.Evidence.VideoPath},
	} {
		if e.path != "" {
			fmt.Fprintf(a.out, "%s: %s\n", e.name, e.path)
		}
	}
	return nil
}

func (a *App) displayCoverage(path string) error {
	tracker, err := coverage.Load(path)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(tracker.Summary(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal coverage summary: %w", err)
	}
	fmt.Fprintf(a.out, "Coverage: %s\n", path)
	fmt.Fprintln(a.out, string(out))
	return nil
}

func (a *App) displayProfile(ctx context.Context, entry *history.Entry, pprofArgs []string) error {
	var profileArtifact *model.Artifact
	for i := range entry.Run.Artifacts {
		if entry.Run.Artifacts[i].Type == model.ArtifactTypeCoverageProfile {
			profileArtifact = &entry.Run.Artifacts[i]
			break
		}
	}
	if profileArtifact == nil {
		return fmt.Errorf("run %s has no coverage profile", entry.Run.ID)
	}

	fmt.Fprintf(a.out, "Profile: %s (%.1f KB)\n", profileArtifact.File, float64(profileArtifact.Size)/1024)

	args := []string{"tool", "pprof"}
	args = append(args, pprofArgs...)
	args = append(args, profileArtifact.File)

	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = a.out
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
