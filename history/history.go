package history

// This file contains shared history utilities for recording, loading and
// resolving run records below the artifacts root.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/replayrig/replayrig/model"
)

// RecordFile is the name of the run record inside each run directory.
const RecordFile = "run.json"

var ErrNoRuns = errors.New("no runs found")

type Entry struct {
	Run      model.RunRecord
	FullPath string
}

// RunsRoot returns the directory holding one subdirectory per run.
func RunsRoot(artifactsRoot string) string {
	return filepath.Join(artifactsRoot, "runs")
}

// Save writes the record to <runDir>/run.json.
func Save(runDir string, rec *model.RunRecord) error {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, RecordFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// LoadEntries loads all run records below runsRoot, newest first. A missing
// root yields no entries.
func LoadEntries(logger zerolog.Logger, runsRoot string) ([]Entry, error) {
	var entries []Entry

	if _, err := os.Stat(runsRoot); os.IsNotExist(err) {
		return nil, nil
	}

	err := filepath.WalkDir(runsRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			recordPath := filepath.Join(path, RecordFile)
			if _, err := os.Stat(recordPath); err == nil {
				rec, err := parseRecordJSON(recordPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", recordPath).Msg("Failed to parse run.json")
					return nil
				}

				entries = append(entries, Entry{
					Run:      rec,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk runs directory: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Run.Timestamp.After(entries[j].Run.Timestamp)
	})

	return entries, nil
}

// Find resolves arg against newest-first entries. "0" is the latest run,
// "-1" the one before it, anything else is matched as a run id prefix.
func Find(entries []Entry, arg string) (*Entry, error) {
	if len(entries) == 0 {
		return nil, ErrNoRuns
	}

	// run ids start with a date, so positive numbers are id prefixes
	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil && parsed <= 0 {
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d runs)", arg, len(entries))
		}
		return &entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for i := range entries {
		if strings.HasPrefix(strings.ToLower(entries[i].Run.ID), prefix) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no run found matching ID: %s", arg)
}

// parseRecordJSON parses a run.json file.
func parseRecordJSON(recordPath string) (model.RunRecord, error) {
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return model.RunRecord{}, err
	}

	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.RunRecord{}, err
	}

	return rec, nil
}
