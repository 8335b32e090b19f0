package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/replayrig/replayrig/browser"
	"github.com/replayrig/replayrig/browser/browsertest"
	"github.com/replayrig/replayrig/model"
	"github.com/replayrig/replayrig/run"
)

type failingRecorder struct{}

func (failingRecorder) CaptureScreenshot(context.Context, browser.Session, string) (string, error) {
	return "", errors.New("recorder offline")
}

func testState() model.GameState {
	return model.GameState{
		ScreenID:    "PLAY",
		Summary:     "Gameplay screen",
		ActionHints: []string{"click FIRE"},
		UIElements:  []model.UIElement{{Label: "FIRE", Type: "button"}},
		Warnings:    []string{},
	}
}

func TestCaptureBugEvidence_Sources(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, rc *run.Context) browser.Session
		want      Source
		wantMatch func(t *testing.T, rc *run.Context, path string)
	}{
		{
			name: "recorder",
			setup: func(t *testing.T, rc *run.Context) browser.Session {
				rc.Meta.Recorder = browser.NewRecorder(zerolog.Nop(), rc)
				return browsertest.NewSession("PLAY")
			},
			want: SourceRecorder,
			wantMatch: func(t *testing.T, rc *run.Context, path string) {
				require.Equal(t, filepath.Join(rc.ArtifactsRoot, "screenshots", rc.RunID), filepath.Dir(path))
			},
		},
		{
			name: "recorder fails, last known",
			setup: func(t *testing.T, rc *run.Context) browser.Session {
				rc.Meta.Recorder = failingRecorder{}
				last := filepath.Join(t.TempDir(), "chaos-step-003.png")
				require.NoError(t, os.WriteFile(last, browsertest.PNG, 0644))
				rc.Meta.LastScreenshotPath = last
				return browsertest.NewSession("PLAY")
			},
			want: SourceLastKnown,
			wantMatch: func(t *testing.T, rc *run.Context, path string) {
				require.Equal(t, rc.Meta.LastScreenshotPath, path)
			},
		},
		{
			name: "stale last known, fresh",
			setup: func(t *testing.T, rc *run.Context) browser.Session {
				rc.Meta.LastScreenshotPath = filepath.Join(t.TempDir(), "gone.png")
				return browsertest.NewSession("PLAY")
			},
			want: SourceFresh,
			wantMatch: func(t *testing.T, rc *run.Context, path string) {
				require.Equal(t, filepath.Join(rc.ArtifactsRoot, "runs", rc.RunID, "bug_crash.png"), path)
			},
		},
		{
			name: "no session, placeholder",
			setup: func(t *testing.T, rc *run.Context) browser.Session {
				return nil
			},
			want: SourcePlaceholder,
			wantMatch: func(t *testing.T, rc *run.Context, path string) {
				require.Equal(t, filepath.Join(rc.ArtifactsRoot, "runs", rc.RunID, "bug_crash-screenshot-unavailable.txt"), path)
			},
		},
		{
			name: "screenshot fails, placeholder",
			setup: func(t *testing.T, rc *run.Context) browser.Session {
				s := browsertest.NewSession("PLAY")
				s.ScreenshotErr = errors.New("target closed")
				return s
			},
			want: SourcePlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &run.Context{RunID: "r1", ArtifactsRoot: t.TempDir()}
			session := tt.setup(t, rc)

			res, err := CaptureBugEvidence(context.Background(), rc, session, testState(), "bug crash")
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Source)
			require.FileExists(t, res.ScreenshotPath)
			if tt.wantMatch != nil {
				tt.wantMatch(t, rc, res.ScreenshotPath)
			}
		})
	}
}

func TestCaptureBugEvidence_State(t *testing.T) {
	rc := &run.Context{RunID: "r1", ArtifactsRoot: t.TempDir()}
	rc.Meta.VideoPath = "/videos/r1/session.mjpeg"

	res, err := CaptureBugEvidence(context.Background(), rc, nil, testState(), "bug-hang")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(rc.ArtifactsRoot, "runs", "r1", "bug-hang-state.json"), res.StatePath)

	data, err := os.ReadFile(res.StatePath)
	require.NoError(t, err)
	var got model.GameState
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, testState(), got)

	ev := res.Evidence()
	require.Equal(t, res.ScreenshotPath, ev.ScreenshotPath)
	require.Equal(t, res.StatePath, ev.StatePath)
	require.Equal(t, "/videos/r1/session.mjpeg", ev.VideoPath)
}

func TestCaptureBugEvidence_StateWriteFailureIsLogged(t *testing.T) {
	rc := &run.Context{RunID: "r1", ArtifactsRoot: t.TempDir()}
	runDir, err := rc.RunDir()
	require.NoError(t, err)
	// a directory where the snapshot should go makes the write fail
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "bug-hang-state.json"), 0755))

	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	res, err := CaptureBugEvidence(ctx, rc, nil, testState(), "bug-hang")
	require.NoError(t, err)
	require.Empty(t, res.StatePath)
	require.Empty(t, res.Evidence().StatePath)
	require.Equal(t, SourcePlaceholder, res.Source)
	require.FileExists(t, res.ScreenshotPath)
	require.Contains(t, logs.String(), "State snapshot failed")
}

func TestCaptureBugEvidence_RunDirError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	rc := &run.Context{RunID: "r1", ArtifactsRoot: blocker}
	_, err := CaptureBugEvidence(context.Background(), rc, nil, testState(), "bug")
	require.Error(t, err)
}

func TestSourceString(t *testing.T) {
	require.Equal(t, "recorder", SourceRecorder.String())
	require.Equal(t, "placeholder", SourcePlaceholder.String())
	require.Equal(t, "unknown", Source(42).String())
}
