package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"

	"github.com/replayrig/replayrig/gh"
)

// Ref points at a published evidence artifact.
type Ref struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// Location returns the URL if the artifact was uploaded, otherwise its path.
func (r Ref) Location() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Path
}

// Store publishes evidence files.
type Store interface {
	Publish(ctx context.Context, path, kind string) (Ref, error)
}

// Local leaves files where they are.
type Local struct{}

func (Local) Publish(_ context.Context, path, kind string) (Ref, error) {
	return Ref{Kind: kind, Path: path}, nil
}

// GitHubRelease uploads evidence as assets of a per-run prerelease tagged
// evidence-<run id>. The release is looked up or created once and cached.
type GitHubRelease struct {
	logger zerolog.Logger
	client *github.Client
	repo   gh.Repo
	runID  string

	mu      sync.Mutex
	release *github.RepositoryRelease
}

func NewGitHubRelease(logger zerolog.Logger, client *github.Client, repo gh.Repo, runID string) *GitHubRelease {
	return &GitHubRelease{
		logger: logger,
		client: client,
		repo:   repo,
		runID:  runID,
	}
}

// Tag returns the release tag evidence is uploaded under.
func (s *GitHubRelease) Tag() string {
	return "evidence-" + s.runID
}

func (s *GitHubRelease) getOrCreateRelease(ctx context.Context) (*github.RepositoryRelease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release != nil {
		return s.release, nil
	}

	tag := s.Tag()
	rel, resp, err := s.client.Repositories.GetReleaseByTag(ctx, s.repo.Owner, s.repo.Name, tag)
	if err = gh.Wrap("get release", resp, err); err != nil {
		if !gh.IsNotFound(err) {
			return nil, err
		}

		s.logger.Debug().Str("tag", tag).Msg("Creating evidence release")
		rel, resp, err = s.client.Repositories.CreateRelease(ctx, s.repo.Owner, s.repo.Name, &github.RepositoryRelease{
			TagName:    github.String(tag),
			Name:       github.String("ReplayRig Evidence " + s.runID),
			Prerelease: github.Bool(true),
		})
		if err = gh.Wrap("create release", resp, err); err != nil {
			return nil, err
		}
	}

	s.release = rel
	return rel, nil
}

func (s *GitHubRelease) Publish(ctx context.Context, path, kind string) (Ref, error) {
	rel, err := s.getOrCreateRelease(ctx)
	if err != nil {
		return Ref{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to open evidence %s: %w", path, err)
	}
	defer f.Close()

	asset, resp, err := s.client.Repositories.UploadReleaseAsset(ctx, s.repo.Owner, s.repo.Name, rel.GetID(), &github.UploadOptions{
		Name:      filepath.Base(path),
		MediaType: GuessContentType(path),
	}, f)
	if err = gh.Wrap("upload", resp, err); err != nil {
		return Ref{}, err
	}

	s.logger.Info().Str("kind", kind).Str("url", asset.GetBrowserDownloadURL()).Msg("Published evidence")
	return Ref{Kind: kind, Path: path, URL: asset.GetBrowserDownloadURL()}, nil
}

// GuessContentType maps an evidence file extension to a media type.
func GuessContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mjpeg", ".mjpg":
		return "video/x-motion-jpeg"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
