package browser

// rod.go implements Launcher and Session on top of go-rod (Chrome DevTools Protocol).

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const (
	defaultInteractionTimeout = 5 * time.Second
	defaultNavigationTimeout  = 30 * time.Second
)

// Rod launches Chromium sessions through go-rod.
type Rod struct {
	logger             zerolog.Logger
	controlURL         string
	interactionTimeout time.Duration
	navigationTimeout  time.Duration
}

// RodOption is a function that configures a Rod launcher.
type RodOption func(*Rod)

// WithControlURL connects to an already running Chrome instead of launching one.
func WithControlURL(url string) RodOption {
	return func(r *Rod) {
		r.controlURL = url
	}
}

// WithInteractionTimeout bounds every click, key press, screenshot and text read.
func WithInteractionTimeout(d time.Duration) RodOption {
	return func(r *Rod) {
		r.interactionTimeout = d
	}
}

// WithNavigationTimeout bounds the initial page load.
func WithNavigationTimeout(d time.Duration) RodOption {
	return func(r *Rod) {
		r.navigationTimeout = d
	}
}

// NewRod creates a go-rod backed Launcher.
func NewRod(logger zerolog.Logger, opts ...RodOption) *Rod {
	r := &Rod{
		logger:             logger,
		interactionTimeout: defaultInteractionTimeout,
		navigationTimeout:  defaultNavigationTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches (or connects to) Chrome, opens a page with the requested
// viewport and navigates to url. It fails with ErrNavigation when the document
// cannot be loaded or its HTTP status is >= 400.
func (r *Rod) Start(ctx context.Context, url string, opts StartOptions) (Session, error) {
	s := &rodSession{
		logger:  r.logger,
		timeout: r.interactionTimeout,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	controlURL := r.controlURL
	if controlURL == "" {
		s.launcher = launcher.New().Headless(opts.Headless)
		u, err := s.launcher.Launch()
		if err != nil {
			s.cancel()
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = u
	}

	s.browser = rod.New().ControlURL(controlURL).Context(s.ctx)
	if err := s.browser.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page

	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Viewport.Width,
			Height:            opts.Viewport.Height,
			DeviceScaleFactor: 1.0,
		}); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to set viewport")
		}
	}

	if err := s.navigate(ctx, url, r.navigationTimeout); err != nil {
		_ = s.Close()
		return nil, err
	}

	r.logger.Debug().Str("url", url).Bool("headless", opts.Headless).Msg("Browser session started")
	return s, nil
}

type rodSession struct {
	logger   zerolog.Logger
	timeout  time.Duration
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	screencast context.CancelFunc
	closed     bool
}

func (s *rodSession) navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := s.page.Context(navCtx)

	status := 0
	waitDocument := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		status = e.Response.Status
		return true
	})

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	waitDocument()

	if status == 0 {
		return fmt.Errorf("%w: no document response for %s", ErrNavigation, url)
	}
	if status >= 400 {
		return fmt.Errorf("%w: HTTP status %d for %s", ErrNavigation, status, url)
	}

	if err := page.WaitLoad(); err != nil {
		s.logger.Debug().Err(err).Msg("Page load event not observed")
	}
	return nil
}

// bound returns the page bound to ctx and the interaction timeout.
func (s *rodSession) bound(ctx context.Context) (*rod.Page, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.page.Context(tctx), cancel
}

func (s *rodSession) Click(ctx context.Context, selector string) error {
	page, cancel := s.bound(ctx)
	defer cancel()

	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *rodSession) ClickAt(ctx context.Context, x, y int) error {
	page, cancel := s.bound(ctx)
	defer cancel()

	if err := page.Mouse.MoveTo(proto.Point{X: float64(x), Y: float64(y)}); err != nil {
		return fmt.Errorf("move mouse to (%d,%d): %w", x, y, err)
	}
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click at (%d,%d): %w", x, y, err)
	}
	return nil
}

func (s *rodSession) Type(ctx context.Context, text string) error {
	page, cancel := s.bound(ctx)
	defer cancel()

	keys := make([]input.Key, 0, len(text))
	for _, r := range text {
		// Only printable ASCII has a key definition; anything else is inserted as text.
		if r < 0x20 || r > 0x7e {
			return page.InsertText(text)
		}
		keys = append(keys, input.Key(r))
	}
	if err := page.Keyboard.Type(keys...); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return nil
}

func (s *rodSession) Press(ctx context.Context, key string) error {
	page, cancel := s.bound(ctx)
	defer cancel()

	var k input.Key
	switch key {
	case KeyEscape:
		k = input.Escape
	case KeyEnter:
		k = input.Enter
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	if err := page.Keyboard.Type(k); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

func (s *rodSession) Screenshot(ctx context.Context, path string) (string, error) {
	page, cancel := s.bound(ctx)
	defer cancel()

	data, err := page.Screenshot(true, nil)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

func (s *rodSession) Text(ctx context.Context, selector string) (string, error) {
	page, cancel := s.bound(ctx)
	defer cancel()

	el, err := page.Element(selector)
	if err != nil {
		return "", fmt.Errorf("element %s not found: %w", selector, err)
	}
	return el.Text()
}

func (s *rodSession) Texts(ctx context.Context, selector string) ([]string, error) {
	page, cancel := s.bound(ctx)
	defer cancel()

	els, err := page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("elements %s: %w", selector, err)
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		txt, err := el.Text()
		if err != nil {
			return nil, err
		}
		texts = append(texts, txt)
	}
	return texts, nil
}

// Subscribe wires CDP runtime, network and inspector events into l for the
// lifetime of the session.
func (s *rodSession) Subscribe(l Listener) error {
	page := s.page.Context(s.ctx)

	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		return fmt.Errorf("failed to enable runtime events: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("failed to enable network events: %w", err)
	}

	wait := page.EachEvent(
		func(e *proto.RuntimeExceptionThrown) {
			l.OnPageError(exceptionMessage(e.ExceptionDetails))
		},
		func(e *proto.RuntimeConsoleAPICalled) {
			l.OnConsoleMessage(string(e.Type), stringifyConsoleArgs(e.Args))
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil {
				l.OnHTTPResponse(e.Response.Status)
			}
		},
		func(e *proto.InspectorTargetCrashed) {
			l.OnCrash()
		},
	)
	go wait()
	return nil
}

func (s *rodSession) StartScreencast(ctx context.Context, onFrame func(frame []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screencast != nil {
		return fmt.Errorf("screencast already running")
	}

	castCtx, cancel := context.WithCancel(s.ctx)
	page := s.page.Context(castCtx)

	wait := page.EachEvent(func(e *proto.PageScreencastFrame) {
		onFrame(e.Data)
		if err := (proto.PageScreencastFrameAck{SessionID: e.SessionID}).Call(page); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to ack screencast frame")
		}
	})
	go wait()

	quality := 70
	everyNth := 1
	if err := (proto.PageStartScreencast{
		Format:        proto.PageStartScreencastFormatJpeg,
		Quality:       &quality,
		EveryNthFrame: &everyNth,
	}).Call(s.page.Context(ctx)); err != nil {
		cancel()
		return fmt.Errorf("failed to start screencast: %w", err)
	}
	s.screencast = cancel
	return nil
}

func (s *rodSession) StopScreencast(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screencast == nil {
		return nil
	}

	err := (proto.PageStopScreencast{}).Call(s.page.Context(ctx))
	s.screencast()
	s.screencast = nil
	if err != nil {
		return fmt.Errorf("failed to stop screencast: %w", err)
	}
	return nil
}

func (s *rodSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.cancel()
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	return err
}

func exceptionMessage(d *proto.RuntimeExceptionDetails) string {
	if d == nil {
		return "unknown exception"
	}
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
