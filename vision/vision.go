// Package vision turns screenshots into structured GameState observations
// through a vision-capable model.
package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/replayrig/replayrig/gh"
	"github.com/replayrig/replayrig/model"
)

// Prompt instructs the model to describe a screenshot as a GameState.
const Prompt = `You are a QA agent looking at a screenshot of a web game.
Identify the current screen and the actions a player can take.
Return a single JSON object with:
- screen_id: short uppercase identifier of the screen (e.g. TITLE, PLAY, GAME_OVER)
- summary: one sentence describing what is visible
- action_hints: ordered list of suggested actions such as "click START"
- ui_elements: list of {"label", "type"} for visible controls
- is_loading: true if the game shows a loading indicator`

// Schema is the JSON schema of the expected model response.
var Schema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"screen_id":    map[string]any{"type": "string"},
		"summary":      map[string]any{"type": "string"},
		"action_hints": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"ui_elements": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"label": map[string]any{"type": "string"},
					"type":  map[string]any{"type": "string"},
				},
				"required": []string{"label", "type"},
			},
		},
		"is_loading": map[string]any{"type": "boolean"},
	},
	"required": RequiredKeys,
}

// RequiredKeys lists the keys a payload must carry.
var RequiredKeys = []string{"screen_id", "summary", "action_hints", "ui_elements", "is_loading"}

// Extractor answers a prompt about an image with a JSON object.
type Extractor interface {
	Extract(ctx context.Context, prompt string, image []byte, schema map[string]any) (map[string]any, error)
}

// Mock is an offline Extractor. Its screen id is "mock-" followed by a hash
// of the image, so the same screenshot always yields the same answer.
type Mock struct{}

func (Mock) Extract(_ context.Context, _ string, image []byte, _ map[string]any) (map[string]any, error) {
	sum := sha256.Sum256(image)
	return map[string]any{
		"screen_id":    "mock-" + hex.EncodeToString(sum[:4]),
		"summary":      "Mock vision response",
		"action_hints": []any{},
		"ui_elements":  []any{},
		"is_loading":   false,
	}, nil
}

// StateFromPayload converts a model response into a GameState. Missing keys
// are reported as warnings; a payload that cannot be decoded yields a
// parse-error state.
func StateFromPayload(payload map[string]any) model.GameState {
	var warnings []string
	for _, key := range RequiredKeys {
		if _, ok := payload[key]; !ok {
			warnings = append(warnings, "missing key: "+key)
		}
	}

	state, err := decodeState(payload)
	if err != nil {
		return model.GameState{
			ScreenID:    model.ScreenParseError,
			Summary:     "Failed to parse model response",
			ActionHints: []string{},
			UIElements:  []model.UIElement{},
			Warnings:    []string{fmt.Sprintf("parse error: %v", err)},
		}
	}

	state.Warnings = append(state.Warnings, warnings...)
	return state
}

func decodeState(payload map[string]any) (model.GameState, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.GameState{}, err
	}

	var state model.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.GameState{}, err
	}

	if state.ActionHints == nil {
		state.ActionHints = []string{}
	}
	if state.UIElements == nil {
		state.UIElements = []model.UIElement{}
	}
	if state.Warnings == nil {
		state.Warnings = []string{}
	}
	return state, nil
}

// StateFromScreenshot asks ex to describe the image at path. Any extraction
// failure yields a vision-error state carrying the error as a warning.
func StateFromScreenshot(ctx context.Context, ex Extractor, path string) model.GameState {
	image, err := os.ReadFile(path)
	if err == nil {
		var payload map[string]any
		payload, err = ex.Extract(ctx, Prompt, image, Schema)
		if err == nil {
			return StateFromPayload(payload)
		}
	}

	return model.GameState{
		ScreenID:    model.ScreenVisionError,
		Summary:     "Vision extraction failed",
		ActionHints: []string{},
		UIElements:  []model.UIElement{},
		Warnings:    []string{"vision error: " + gh.Truncate(err.Error(), gh.MaxErrorPayload)},
	}
}
