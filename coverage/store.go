package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the tracker as indented JSON, creating parent directories.
func Save(path string, t *Tracker) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create coverage directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal coverage: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write coverage: %w", err)
	}
	return path, nil
}

// Load reads a tracker written by Save.
func Load(path string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	t := NewTracker(nil)
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse coverage %s: %w", path, err)
	}
	return t, nil
}
