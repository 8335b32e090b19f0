package cli

// This file contains the list command for displaying previous runs.

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/replayrig/replayrig/history"
	"github.com/replayrig/replayrig/model"
)

func (a *App) list(ctx *cli.Context) error {
	filterMode := model.RunMode(ctx.String("mode"))
	limit := ctx.Int("limit")

	runsRoot := history.RunsRoot(artifactsRoot(ctx))
	entries, err := history.LoadEntries(a.logger, runsRoot)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	var filtered []history.Entry
	for _, entry := range entries {
		if filterMode == "" || entry.Run.Mode == filterMode {
			filtered = append(filtered, entry)
		}
	}

	if len(filtered) == 0 {
		if filterMode != "" {
			fmt.Fprintf(a.out, "No %s runs found\n", filterMode)
		} else {
			fmt.Fprintln(a.out, "No runs found")
		}
		fmt.Fprintf(a.out, "Runs are recorded to %s/<run id>/%s\n", runsRoot, history.RecordFile)
		return nil
	}

	// entries are newest first
	display := filtered
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Fprintf(a.out, "\n=== Runs (%d total) ===\n\n", len(filtered))

	for _, entry := range display {
		r := entry.Run
		timestamp := r.Timestamp.Format("2006-01-02 15:04:05")
		duration := r.Duration.Round(time.Millisecond)

		status := "✓"
		switch r.ExitCode {
		case 0:
		case ExitBugFound:
			status = "!"
		default:
			status = "✗"
		}

		fmt.Fprintf(a.out, "%s  %s  %-7s  [%s]  exit=%d  id=%s\n", status, timestamp, r.Mode, duration, r.ExitCode, r.ID)
		if len(r.Args) > 1 {
			fmt.Fprintf(a.out, "   Args: %s\n", strings.Join(r.Args[1:], " "))
		}
		if r.TargetURL != "" {
			fmt.Fprintf(a.out, "   Target: %s\n", r.TargetURL)
		}
		if r.Git != nil && r.Git.Commit != "" {
			fmt.Fprintf(a.out, "   Commit: %s", shortCommit(r.Git.Commit))
			if r.Git.Branch != "" {
				fmt.Fprintf(a.out, " (%s)", r.Git.Branch)
			}
			fmt.Fprintln(a.out)
		}
		if r.BugPath != "" {
			fmt.Fprintf(a.out, "   Bug: %s\n", r.BugPath)
		}
		if r.CoveragePath != "" {
			fmt.Fprintf(a.out, "   Coverage: %s\n", r.CoveragePath)
		}
		if r.Error != "" {
			fmt.Fprintf(a.out, "   Error: %s\n", r.Error)
		}
		if len(r.Artifacts) > 0 {
			fmt.Fprintf(a.out, "   Artifacts: %s\n", artifactCounts(r.Artifacts))
		}
		fmt.Fprintf(a.out, "   %s\n", entry.FullPath)
		fmt.Fprintln(a.out)
	}

	fmt.Fprintf(a.out, "View a run: %s view <ID>\n", AppName)
	fmt.Fprintf(a.out, "File a bug: %s issue --bug <bug path>\n", AppName)

	return nil
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

// artifactCounts summarizes artifacts as "2 screenshot, 1 state".
func artifactCounts(artifacts []model.Artifact) string {
	var order []model.ArtifactType
	counts := make(map[model.ArtifactType]int)
	for _, artifact := range artifacts {
		if _, ok := counts[artifact.Type]; !ok {
			order = append(order, artifact.Type)
		}
		counts[artifact.Type]++
	}
	parts := make([]string, 0, len(order))
	for _, t := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
	}
	return strings.Join(parts, ", ")
}
