package model

// UIElement is one actionable control observed on a screen.
type UIElement struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// GameState is one observed snapshot of the target application.
type GameState struct {
	// Identifier of the current screen (e.g. "TITLE", "PLAY")
	ScreenID string `json:"screen_id"`
	// Free-text description of what is on screen
	Summary string `json:"summary"`
	// Suggested next actions, most relevant first
	ActionHints []string `json:"action_hints"`
	// Controls found on the screen
	UIElements []UIElement `json:"ui_elements"`
	// Whether the application reported a loading state
	IsLoading bool `json:"is_loading"`
	// Diagnostics collected while producing this state
	Warnings []string `json:"warnings"`
}

// Sentinel screen identifiers produced when an observation could not be trusted.
const (
	ScreenVisionError = "vision-error"
	ScreenParseError  = "parse-error"
	ScreenUnknown     = "UNKNOWN"
)

// Warn appends a diagnostic to the state.
func (s *GameState) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}
