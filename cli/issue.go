package cli

// This file contains the issue command for filing a bug report on GitHub.

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/replayrig/replayrig/evidence"
	"github.com/replayrig/replayrig/gh"
	"github.com/replayrig/replayrig/history"
	"github.com/replayrig/replayrig/issue"
	"github.com/replayrig/replayrig/model"
)

const (
	evidenceLocal         = "local"
	evidenceGitHubRelease = "github-release"
)

func parseLabels(s string) []string {
	var labels []string
	for _, label := range strings.Split(s, ",") {
		if label = strings.TrimSpace(label); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

func (a *App) issue(ctx *cli.Context) error {
	bugPath := ctx.String("bug")
	bug, err := model.LoadBugReport(bugPath)
	if err != nil {
		return fmt.Errorf("failed to load bug report: %w", err)
	}

	evidenceMode := ctx.String("evidence")
	if evidenceMode != evidenceLocal && evidenceMode != evidenceGitHubRelease {
		return fmt.Errorf("invalid evidence store %q: expected %s or %s", evidenceMode, evidenceLocal, evidenceGitHubRelease)
	}

	token := ctx.String("github-token")
	dryRun := ctx.Bool("dry-run") || token == ""
	if dryRun && !ctx.Bool("dry-run") {
		a.logger.Info().Msg("No GitHub token, running dry")
	}

	var tracker issue.Tracker
	var store evidence.Store = evidence.Local{}
	if dryRun {
		tracker = issue.DryRun{Repo: ctx.String("github-repo")}
		if evidenceMode == evidenceGitHubRelease {
			a.logger.Warn().Msg("Dry run keeps evidence local")
		}
	} else {
		repo, err := gh.ParseRepo(ctx.String("github-repo"))
		if err != nil {
			return err
		}
		var opts []gh.ClientOption
		if u := ctx.String("github-api-url"); u != "" {
			opts = append(opts, gh.WithBaseURL(u))
		}
		client, err := gh.NewClient(token, opts...)
		if err != nil {
			return err
		}
		tracker = issue.NewGitHub(a.logger, client, repo)
		if evidenceMode == evidenceGitHubRelease {
			store = evidence.NewGitHubRelease(a.logger, client, repo, bug.RunID)
		}
	}

	refs, err := issue.EvidenceRefs(ctx.Context, store, bug)
	if err != nil {
		return err
	}

	env := issue.DefaultEnvironment()
	env.ReproCommand = a.reproCommand(artifactsRoot(ctx), bug.RunID)

	title, body := issue.Render(bug, refs, env)
	fmt.Fprintln(a.out, body)

	created, err := tracker.CreateIssue(ctx.Context, title, body, parseLabels(ctx.String("labels")))
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	a.logger.Info().Str("bug_id", bug.BugID).Int("number", created.Number).Bool("dry_run", dryRun).Msg("Issue filed")
	fmt.Fprintf(a.out, "Issue URL: %s\n", created.URL)
	return nil
}

// reproCommand returns the argv of the run that produced the bug, if it
// was recorded.
func (a *App) reproCommand(artifactsRoot, runID string) []string {
	entries, err := history.LoadEntries(a.logger, history.RunsRoot(artifactsRoot))
	if err != nil {
		a.logger.Debug().Err(err).Msg("Failed to load runs")
		return nil
	}
	for _, entry := range entries {
		if entry.Run.ID == runID {
			return entry.Run.Args
		}
	}
	return nil
}
