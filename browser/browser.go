// Package browser defines the browser automation capability the agents drive
// and provides a go-rod implementation of it.
package browser

import (
	"context"
	"errors"
)

// ErrNavigation is returned by Launcher.Start when the target could not be
// loaded or answered with an error status.
var ErrNavigation = errors.New("navigation failed")

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// StartOptions configures a new session.
type StartOptions struct {
	Headless bool
	Viewport Viewport
}

// Listener receives asynchronous signals from a live session.
// Implementations must be safe for calls from backend goroutines.
type Listener interface {
	OnPageError(message string)
	OnConsoleMessage(kind, text string)
	OnHTTPResponse(status int)
	OnCrash()
}

// EventSource is anything a Listener can be subscribed to.
type EventSource interface {
	Subscribe(l Listener) error
}

// Session is one live page of the application under test. All interactions
// block until done or until the backend's interaction timeout expires.
type Session interface {
	EventSource

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// ClickAt clicks the viewport coordinate (x, y).
	ClickAt(ctx context.Context, x, y int) error
	// Type sends text as keyboard input to the focused element.
	Type(ctx context.Context, text string) error
	// Press presses a named key such as "Escape".
	Press(ctx context.Context, key string) error
	// Screenshot writes a full-page PNG to path and returns the path.
	Screenshot(ctx context.Context, path string) (string, error)
	// Text returns the inner text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// Texts returns the inner text of every element matching selector.
	Texts(ctx context.Context, selector string) ([]string, error)
	// StartScreencast streams encoded JPEG frames to onFrame until stopped.
	StartScreencast(ctx context.Context, onFrame func(frame []byte)) error
	// StopScreencast stops a screencast started with StartScreencast.
	StopScreencast(ctx context.Context) error
	// Close releases the page and the browser behind it.
	Close() error
}

// Launcher starts sessions.
type Launcher interface {
	Start(ctx context.Context, url string, opts StartOptions) (Session, error)
}

// Key names accepted by Session.Press.
const (
	KeyEscape = "Escape"
	KeyEnter  = "Enter"
)
