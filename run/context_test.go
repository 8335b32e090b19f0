package run

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	id := NewRunID(now)
	require.Regexp(t, regexp.MustCompile(`^20260314-150926-[0-9a-f]{6}$`), id)
	require.NotEqual(t, id, NewRunID(now))
}

func TestContext_Dirs(t *testing.T) {
	root := t.TempDir()
	rc := &Context{RunID: "r1", ArtifactsRoot: root}

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"run", rc.RunDir, filepath.Join(root, "runs", "r1")},
		{"screenshots", rc.ScreenshotsDir, filepath.Join(root, "screenshots", "r1")},
		{"videos", rc.VideosDir, filepath.Join(root, "videos", "r1")},
		{"bugs", rc.BugsDir, filepath.Join(root, "bugs")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.DirExists(t, got)

			// idempotent
			again, err := tt.fn()
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}

	path, err := rc.CoveragePath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "coverage", "r1.json"), path)
	require.DirExists(t, filepath.Dir(path))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestContext_DirError(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	rc := &Context{RunID: "r1", ArtifactsRoot: blocker}
	_, err := rc.RunDir()
	require.Error(t, err)
}

func TestContext_DefaultRoot(t *testing.T) {
	rc := &Context{RunID: "r1"}
	require.Equal(t, DefaultArtifactsRoot, rc.Root())
}
