package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoVideo is returned by Recorder.Finalize when no frame was ever written.
var ErrNoVideo = errors.New("video not found after recording")

// RunDirs resolves the directories of the run being recorded.
// *run.Context implements it.
type RunDirs interface {
	ScreenshotsDir() (string, error)
	VideosDir() (string, error)
}

// Recorder captures labelled screenshots and records a session screencast as a
// raw MJPEG stream named session.mjpeg in the run's video directory.
type Recorder struct {
	logger zerolog.Logger
	dirs   RunDirs
	now    func() time.Time

	mu      sync.Mutex
	session Session
	file    *os.File
	path    string
	frames  int
	written int64
	werr    error
}

// NewRecorder creates a recorder writing into the directories of dirs.
func NewRecorder(logger zerolog.Logger, dirs RunDirs) *Recorder {
	return &Recorder{
		logger: logger,
		dirs:   dirs,
		now:    time.Now,
	}
}

// SanitizeLabel keeps letters, digits, '-' and '_' and replaces anything else with '_'.
func SanitizeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CaptureScreenshot writes a full-page screenshot named
// <unix seconds>-<label>.png to the run's screenshot directory.
func (r *Recorder) CaptureScreenshot(ctx context.Context, s Session, label string) (string, error) {
	dir, err := r.dirs.ScreenshotsDir()
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, fmt.Sprintf("%d-%s.png", r.now().Unix(), SanitizeLabel(label)))
	return s.Screenshot(ctx, out)
}

// Start begins streaming the session screencast into the run's video directory.
func (r *Recorder) Start(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return fmt.Errorf("recorder already started")
	}

	dir, err := r.dirs.VideosDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "session.mjpeg")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create video file: %w", err)
	}

	r.session = s
	r.file = f
	r.path = path
	r.frames, r.written, r.werr = 0, 0, nil
	if err := s.StartScreencast(ctx, r.writeFrame); err != nil {
		r.session = nil
		r.file = nil
		_ = f.Close()
		return err
	}

	r.logger.Debug().Str("path", path).Msg("Recording started")
	return nil
}

func (r *Recorder) writeFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil || r.werr != nil {
		return
	}
	n, err := r.file.Write(frame)
	r.written += int64(n)
	if err != nil {
		r.werr = err
		r.logger.Warn().Err(err).Msg("Failed to write video frame")
		return
	}
	r.frames++
}

// Finalize stops the screencast and closes the video file. It returns the
// video path, or ErrNoVideo when nothing was recorded.
func (r *Recorder) Finalize(ctx context.Context) (string, error) {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()
	if s == nil {
		return "", ErrNoVideo
	}

	if err := s.StopScreencast(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stop screencast")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = nil
	f := r.file
	r.file = nil
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close video file: %w", err)
	}

	r.logger.Debug().Str("path", r.path).Int("frames", r.frames).Int64("bytes", r.written).Msg("Recording finalized")
	if r.frames == 0 {
		return "", ErrNoVideo
	}
	return r.path, nil
}
