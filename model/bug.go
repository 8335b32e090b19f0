package model

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Detector identifies the oracle that produced a bug report.
type Detector string

const (
	DetectorCrash Detector = "crash"
	DetectorHang  Detector = "hang"
)

// BugEvidence points at the artifacts proving a detected anomaly.
// Capture is best-effort, so any field may be empty.
type BugEvidence struct {
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	StatePath      string `json:"state_path,omitempty"`
	VideoPath      string `json:"video_path,omitempty"`
}

// BugReport is the immutable record of a detected anomaly.
type BugReport struct {
	// Stable identifier derived from the report content, used as the file name
	BugID string `json:"bug_id"`
	// Run that produced the report
	RunID string `json:"run_id"`
	// Oracle that fired
	Detector Detector `json:"detector"`
	// First reason reported by the oracle
	Reason string `json:"reason"`
	// State observed at the moment of detection
	LastState GameState `json:"last_state"`
	// Action names applied from run start up to the anomaly
	ReproSteps []string `json:"repro_steps"`
	// Where the proof lives
	Evidence BugEvidence `json:"evidence"`
}

// NewBugReport assembles a report from already-captured evidence.
func NewBugReport(runID string, detector Detector, reason string, last GameState, steps []string, evidence BugEvidence) BugReport {
	repro := make([]string, len(steps))
	copy(repro, steps)

	return BugReport{
		BugID:      BugID(runID, detector, reason, repro),
		RunID:      runID,
		Detector:   detector,
		Reason:     reason,
		LastState:  last,
		ReproSteps: repro,
		Evidence:   evidence,
	}
}

// BugID derives the identifier of a bug from its defining fields.
func BugID(runID string, detector Detector, reason string, steps []string) string {
	h := sha256.New()
	for _, part := range append([]string{runID, string(detector), reason}, steps...) {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	sum := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(h.Sum(nil)))
	return fmt.Sprintf("bug-%s-%s", detector, sum[:12])
}

// FileName returns the name the report is persisted under.
func (b BugReport) FileName() string {
	return b.BugID + ".json"
}

// SaveBugReport writes the report as indented JSON into dir and returns the path.
func SaveBugReport(dir string, bug BugReport) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create bug directory: %w", err)
	}

	data, err := json.MarshalIndent(bug, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal bug report: %w", err)
	}

	path := filepath.Join(dir, bug.FileName())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write bug report: %w", err)
	}
	return path, nil
}

// LoadBugReport reads a report previously written by SaveBugReport.
func LoadBugReport(path string) (BugReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BugReport{}, err
	}

	var bug BugReport
	if err := json.Unmarshal(data, &bug); err != nil {
		return BugReport{}, fmt.Errorf("failed to parse bug report %s: %w", path, err)
	}
	return bug, nil
}
