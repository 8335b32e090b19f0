// Package detect holds the oracles that decide whether a session crashed or hung.
package detect

import (
	"fmt"
	"strings"
	"sync"

	"github.com/replayrig/replayrig/browser"
)

// DefaultFatalConsolePatterns are matched case-insensitively against console output.
var DefaultFatalConsolePatterns = []string{
	"DEMO_CRASH",
	"TypeError",
	"ReferenceError",
	"Unhandled",
}

// CrashDetector collects distinct crash reasons in first-seen order.
// It implements browser.Listener and is safe for concurrent use.
type CrashDetector struct {
	patterns []string

	mu       sync.Mutex
	reasons  []string
	attached bool
}

var _ browser.Listener = (*CrashDetector)(nil)

// NewCrashDetector creates a detector. With no patterns the defaults are used.
func NewCrashDetector(patterns ...string) *CrashDetector {
	if len(patterns) == 0 {
		patterns = DefaultFatalConsolePatterns
	}
	return &CrashDetector{
		patterns: append([]string(nil), patterns...),
	}
}

// Mark records reason unless it was already recorded.
func (d *CrashDetector) Mark(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.reasons {
		if r == reason {
			return
		}
	}
	d.reasons = append(d.reasons, reason)
}

func (d *CrashDetector) ObserveException(err error) {
	d.Mark(fmt.Sprintf("exception: %v", err))
}

// ObserveConsole marks the first fatal pattern contained in text.
func (d *CrashDetector) ObserveConsole(text string) {
	lower := strings.ToLower(text)
	for _, p := range d.patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			d.Mark("console fatal pattern matched: " + p)
			return
		}
	}
}

func (d *CrashDetector) ObserveHTTPStatus(code int) {
	if code >= 500 {
		d.Mark(fmt.Sprintf("http status >=500 observed: %d", code))
	}
}

// Attach subscribes the detector to src. Only the first call subscribes.
func (d *CrashDetector) Attach(src browser.EventSource) error {
	d.mu.Lock()
	if d.attached {
		d.mu.Unlock()
		return nil
	}
	d.attached = true
	d.mu.Unlock()

	if err := src.Subscribe(d); err != nil {
		d.mu.Lock()
		d.attached = false
		d.mu.Unlock()
		return fmt.Errorf("failed to attach crash detector: %w", err)
	}
	return nil
}

func (d *CrashDetector) OnPageError(message string) {
	d.Mark("pageerror: " + message)
}

func (d *CrashDetector) OnConsoleMessage(kind, text string) {
	d.ObserveConsole(kind + ": " + text)
}

func (d *CrashDetector) OnHTTPResponse(status int) {
	d.ObserveHTTPStatus(status)
}

func (d *CrashDetector) OnCrash() {
	d.Mark("target crashed")
}

// Check returns the first recorded reason. It never clears state.
func (d *CrashDetector) Check() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.reasons) == 0 {
		return "", false
	}
	return d.reasons[0], true
}

// Reasons returns a copy of all recorded reasons.
func (d *CrashDetector) Reasons() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.reasons...)
}
