// Package agent contains the strategies that drive a target application:
// a scripted adversarial chaos agent and a coverage-seeking explorer.
package agent

import (
	"context"
	"strings"

	"github.com/replayrig/replayrig/browser"
	"github.com/replayrig/replayrig/model"
)

// Control maps a button label to the selector that clicks it.
type Control struct {
	Label    string
	Selector string
}

// Labels of the controls every target is expected to expose.
const (
	ControlStart = "START"
	ControlBoost = "BOOST"
	ControlFire  = "FIRE"
	ControlBack  = "BACK"
	ControlReset = "RESET"
	ControlCrash = "CRASH"
)

// DefaultControls is the control table of the bundled demo game.
var DefaultControls = []Control{
	{Label: ControlStart, Selector: "#startBtn"},
	{Label: ControlBoost, Selector: "#boostBtn"},
	{Label: ControlFire, Selector: "#fireBtn"},
	{Label: ControlBack, Selector: "#backBtn"},
	{Label: ControlReset, Selector: "#resetBtn"},
	{Label: ControlCrash, Selector: "#crashBtn"},
}

// Target describes the application under test.
type Target struct {
	URL      string
	Viewport browser.Viewport
	// StateSelector locates the element whose text names the current screen.
	StateSelector string
	// ButtonSelector locates every clickable control.
	ButtonSelector string
	// Controls is searched in order when mapping a hint to a selector.
	Controls []Control
}

// DefaultTarget returns the profile of the demo game served locally.
func DefaultTarget() Target {
	return Target{
		URL:            "http://127.0.0.1:4173",
		Viewport:       browser.Viewport{Width: 1280, Height: 720},
		StateSelector:  "#stateLabel",
		ButtonSelector: "button",
		Controls:       append([]Control(nil), DefaultControls...),
	}
}

// Selector returns the selector of the control labelled label.
func (t Target) Selector(label string) (string, bool) {
	for _, c := range t.Controls {
		if c.Label == label {
			return c.Selector, true
		}
	}
	return "", false
}

// SelectorForHint returns the first control whose label appears in hint.
func (t Target) SelectorForHint(hint string) (string, bool) {
	text := strings.ToUpper(hint)
	for _, c := range t.Controls {
		if strings.Contains(text, c.Label) {
			return c.Selector, true
		}
	}
	return "", false
}

// domSnapshot is what the page itself says about its state.
type domSnapshot struct {
	screen    string
	screenErr error
	labels    []string
	labelsErr error
}

// readDOM reads the state label (upper-cased) and the trimmed, non-empty
// button labels.
func readDOM(ctx context.Context, s browser.Session, t Target) domSnapshot {
	var snap domSnapshot

	text, err := s.Text(ctx, t.StateSelector)
	if err != nil {
		snap.screenErr = err
	} else {
		snap.screen = strings.ToUpper(strings.TrimSpace(text))
	}

	texts, err := s.Texts(ctx, t.ButtonSelector)
	if err != nil {
		snap.labelsErr = err
		return snap
	}
	for _, txt := range texts {
		if txt = strings.TrimSpace(txt); txt != "" {
			snap.labels = append(snap.labels, txt)
		}
	}
	return snap
}

func clickHints(labels []string) []string {
	hints := make([]string, 0, len(labels))
	for _, l := range labels {
		hints = append(hints, "click "+l)
	}
	return hints
}

func buttonElements(labels []string) []model.UIElement {
	elems := make([]model.UIElement, 0, len(labels))
	for _, l := range labels {
		elems = append(elems, model.UIElement{Label: l, Type: "button"})
	}
	return elems
}
