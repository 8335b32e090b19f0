// Package browsertest provides a scripted in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/replayrig/replayrig/browser"
)

// PNG is the payload written by Session.Screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\nbrowsertest")

// Session is a tiny state machine standing in for a live page. The current
// screen is returned by Text for any selector; Buttons lists the button labels
// per screen; Transitions maps an action key (a selector, "key:<name>",
// "type:<text>" or "at:<x>,<y>") to the next screen; Events fires listener
// callbacks after an action.
type Session struct {
	mu sync.Mutex

	Screen      string
	Buttons     map[string][]string
	Transitions map[string]string
	Events      map[string]func(l browser.Listener)

	// ClickErrs fails the named action keys.
	ClickErrs map[string]error
	// TextErr fails every DOM read.
	TextErr error
	// ScreenshotErr fails every screenshot.
	ScreenshotErr error
	// SubscribeErr fails Subscribe.
	SubscribeErr error

	// Actions records every action key in order.
	Actions []string
	// Screenshots records every written screenshot path.
	Screenshots []string
	Subscribes  int
	Closed      bool

	listeners []browser.Listener
	onFrame   func([]byte)
}

var _ browser.Session = (*Session)(nil)

// NewSession returns a session showing screen.
func NewSession(screen string) *Session {
	return &Session{
		Screen:      screen,
		Buttons:     map[string][]string{},
		Transitions: map[string]string{},
		Events:      map[string]func(l browser.Listener){},
		ClickErrs:   map[string]error{},
	}
}

func (s *Session) act(key string) error {
	s.mu.Lock()
	s.Actions = append(s.Actions, key)
	if err := s.ClickErrs[key]; err != nil {
		s.mu.Unlock()
		return err
	}
	if next, ok := s.Transitions[key]; ok {
		s.Screen = next
	}
	fire := s.Events[key]
	s.mu.Unlock()

	if fire != nil {
		s.Emit(fire)
	}
	return nil
}

// Emit calls fn for every subscribed listener.
func (s *Session) Emit(fn func(l browser.Listener)) {
	s.mu.Lock()
	listeners := append([]browser.Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}

// EmitFrame delivers a screencast frame if a screencast is running.
func (s *Session) EmitFrame(frame []byte) {
	s.mu.Lock()
	onFrame := s.onFrame
	s.mu.Unlock()
	if onFrame != nil {
		onFrame(frame)
	}
}

// CurrentScreen returns the screen the session is on.
func (s *Session) CurrentScreen() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Screen
}

// ActionLog returns a copy of the recorded action keys.
func (s *Session) ActionLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Actions...)
}

func (s *Session) Click(_ context.Context, selector string) error {
	return s.act(selector)
}

func (s *Session) ClickAt(_ context.Context, x, y int) error {
	return s.act(fmt.Sprintf("at:%d,%d", x, y))
}

func (s *Session) Type(_ context.Context, text string) error {
	return s.act("type:" + text)
}

func (s *Session) Press(_ context.Context, key string) error {
	return s.act("key:" + key)
}

func (s *Session) Screenshot(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	err := s.ScreenshotErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, PNG, 0644); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.Screenshots = append(s.Screenshots, path)
	s.mu.Unlock()
	return path, nil
}

func (s *Session) Text(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TextErr != nil {
		return "", s.TextErr
	}
	return s.Screen, nil
}

func (s *Session) Texts(context.Context, string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TextErr != nil {
		return nil, s.TextErr
	}
	return append([]string(nil), s.Buttons[s.Screen]...), nil
}

func (s *Session) Subscribe(l browser.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscribes++
	if s.SubscribeErr != nil {
		return s.SubscribeErr
	}
	s.listeners = append(s.listeners, l)
	return nil
}

func (s *Session) StartScreencast(_ context.Context, onFrame func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onFrame != nil {
		return fmt.Errorf("screencast already running")
	}
	s.onFrame = onFrame
	return nil
}

func (s *Session) StopScreencast(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = nil
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Launcher hands out a prepared Session, or fails with Err.
type Launcher struct {
	Session *Session
	Err     error

	URLs    []string
	Options []browser.StartOptions
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Start(_ context.Context, url string, opts browser.StartOptions) (browser.Session, error) {
	l.URLs = append(l.URLs, url)
	l.Options = append(l.Options, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Session, nil
}
