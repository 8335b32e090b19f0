// Package run holds the per-run context: identifier, artifact layout and the
// metadata collaborators share while a run is in progress.
package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/replayrig/replayrig/browser"
)

// DefaultArtifactsRoot is used when a Context has no ArtifactsRoot.
const DefaultArtifactsRoot = "artifacts"

// ScreenshotCapturer takes labelled screenshots on behalf of evidence capture.
// browser.Recorder satisfies it.
type ScreenshotCapturer interface {
	CaptureScreenshot(ctx context.Context, s browser.Session, label string) (string, error)
}

// Metadata is shared between an agent and evidence capture during a run.
type Metadata struct {
	// LastScreenshotPath is the most recent screenshot the agent wrote.
	LastScreenshotPath string
	// VideoPath is set once a recording has been finalized.
	VideoPath string
	// Recorder, when set, is preferred for evidence screenshots.
	Recorder ScreenshotCapturer
}

// Context identifies one run and owns its subtree under ArtifactsRoot.
type Context struct {
	RunID         string
	ArtifactsRoot string
	Meta          Metadata
}

// New creates a context with a fresh run id.
func New(artifactsRoot string) *Context {
	return &Context{
		RunID:         NewRunID(time.Now()),
		ArtifactsRoot: artifactsRoot,
	}
}

// NewRunID returns "<YYYYMMDD-HHMMSS>-<6 hex chars>".
func NewRunID(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%x", now.Format("20060102-150405"), id[:3])
}

// Root returns the artifacts root, DefaultArtifactsRoot when unset.
func (c *Context) Root() string {
	if c.ArtifactsRoot == "" {
		return DefaultArtifactsRoot
	}
	return c.ArtifactsRoot
}

func ensureDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return path, nil
}

// RunDir returns runs/<run_id>/, creating it if needed.
func (c *Context) RunDir() (string, error) {
	return ensureDir(filepath.Join(c.Root(), "runs", c.RunID))
}

// ScreenshotsDir returns screenshots/<run_id>/, creating it if needed.
func (c *Context) ScreenshotsDir() (string, error) {
	return ensureDir(filepath.Join(c.Root(), "screenshots", c.RunID))
}

// VideosDir returns videos/<run_id>/, creating it if needed.
func (c *Context) VideosDir() (string, error) {
	return ensureDir(filepath.Join(c.Root(), "videos", c.RunID))
}

// BugsDir returns bugs/, creating it if needed.
func (c *Context) BugsDir() (string, error) {
	return ensureDir(filepath.Join(c.Root(), "bugs"))
}

// CoveragePath returns coverage/<run_id>.json. The coverage directory is created.
func (c *Context) CoveragePath() (string, error) {
	dir, err := ensureDir(filepath.Join(c.Root(), "coverage"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.RunID+".json"), nil
}
