package cli

// This file contains run recording functionality for saving run metadata
// and the artifacts a run produced to runs/<run id>/run.json.

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/replayrig/replayrig/history"
	"github.com/replayrig/replayrig/model"
	"github.com/replayrig/replayrig/run"
)

func (a *App) newRunRecord(ctx context.Context, rc *run.Context, mode model.RunMode, targetURL string, start time.Time) *model.RunRecord {
	rec := &model.RunRecord{
		ID:        rc.RunID,
		Mode:      mode,
		Timestamp: start,
		Args:      os.Args,
		TargetURL: targetURL,
	}

	if cwd, err := os.Getwd(); err == nil {
		rec.WorkDir = cwd
	}

	// not being in a git repository is fine
	if git, err := a.getGitInfo(ctx); err == nil {
		rec.Git = git
	} else {
		a.logger.Debug().Err(err).Msg("No git information")
	}

	return rec
}

func (a *App) recordRun(rc *run.Context, rec *model.RunRecord, start time.Time) {
	rec.Duration = time.Since(start)
	rec.Artifacts = collectArtifacts(rc, rec)

	runDir := filepath.Join(history.RunsRoot(rc.Root()), rc.RunID)
	if err := history.Save(runDir, rec); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to record run")
		return
	}
	a.logger.Debug().Str("dir", runDir).Str("id", rec.ID).Msg("Recorded run")
}

// collectArtifacts lists every file the run left under the artifacts root.
func collectArtifacts(rc *run.Context, rec *model.RunRecord) []model.Artifact {
	var artifacts []model.Artifact
	add := func(t model.ArtifactType, path string) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		artifacts = append(artifacts, model.Artifact{Type: t, Size: uint64(info.Size()), File: path})
	}

	if rec.BugPath != "" {
		add(model.ArtifactTypeBugReport, rec.BugPath)
	}
	if rec.CoveragePath != "" {
		add(model.ArtifactTypeCoverage, rec.CoveragePath)
	}

	dirs := []string{
		filepath.Join(rc.Root(), "screenshots", rc.RunID),
		filepath.Join(rc.Root(), "videos", rc.RunID),
		filepath.Join(history.RunsRoot(rc.Root()), rc.RunID),
	}
	for _, dir := range dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if t, ok := artifactType(path); ok {
				add(t, path)
			}
			return nil
		})
	}
	return artifacts
}

func artifactType(path string) (model.ArtifactType, bool) {
	name := filepath.Base(path)
	switch {
	case name == history.RecordFile:
		return 0, false
	case strings.HasSuffix(name, ".pb.gz"):
		return model.ArtifactTypeCoverageProfile, true
	case strings.HasSuffix(name, "-state.json"):
		return model.ArtifactTypeState, true
	case strings.HasSuffix(name, ".png"), strings.HasSuffix(name, "-screenshot-unavailable.txt"):
		return model.ArtifactTypeScreenshot, true
	case strings.HasSuffix(name, ".mjpeg"):
		return model.ArtifactTypeVideo, true
	}
	return 0, false
}
