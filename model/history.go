package model

import "time"

// RunMode represents the strategy a run was executed with
type RunMode string

const (
	RunModeChaos   RunMode = "chaos"
	RunModeExplore RunMode = "explore"
)

// RunRecord represents a single replayrig execution (chaos or explore).
// It is written to runs/<run_id>/run.json when the run finishes.
type RunRecord struct {
	// Unique ID for this run
	ID string `json:"id"`
	// Strategy used for the run
	Mode RunMode `json:"mode"`
	// Timestamp when the run started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// URL of the application under test
	TargetURL string `json:"target_url"`
	// Working directory the command was run from
	WorkDir string `json:"workdir"`
	// Exit code of the execution
	ExitCode int `json:"exit_code"`
	// Duration of execution
	Duration time.Duration `json:"duration"`
	// Git information of the working directory, if any
	Git *Git `json:"git,omitempty"`
	// Bug report written by a chaos run
	BugPath string `json:"bug_path,omitempty"`
	// Coverage file written by an explore run
	CoveragePath string `json:"coverage_path,omitempty"`
	// Error that ended the run early
	Error string `json:"error,omitempty"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeBugReport ArtifactType = iota
	ArtifactTypeCoverage
	ArtifactTypeCoverageProfile
	ArtifactTypeScreenshot
	ArtifactTypeState
	ArtifactTypeVideo
)

// String returns the short name used when listing artifacts.
func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeBugReport:
		return "bug"
	case ArtifactTypeCoverage:
		return "coverage"
	case ArtifactTypeCoverageProfile:
		return "profile"
	case ArtifactTypeScreenshot:
		return "screenshot"
	case ArtifactTypeState:
		return "state"
	case ArtifactTypeVideo:
		return "video"
	}
	return "unknown"
}

// Artifact represents a file generated during a run
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // absolute or relative to the working directory
}
