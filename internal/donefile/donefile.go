// Package donefile parses the structured exit record a job's wrapper
// script writes on completion.
package donefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is the structured document written to genie.done. ExitCode is
// the only field the pipeline requires; any other fields present in the
// file are ignored.
type Record struct {
	ExitCode int `json:"exitCode"`
}

// Path returns the fixed on-disk location of a job's done file:
// <baseWorkingDir>/<jobId>/genie/genie.done.
func Path(baseWorkingDir, jobID string) string {
	return filepath.Join(baseWorkingDir, jobID, "genie", "genie.done")
}

// Read parses the done file for jobID under baseWorkingDir. It returns an
// error if the file is missing, unreadable, or not valid JSON containing
// an exitCode field — the caller is responsible for translating that
// into the canonical "done file unreadable" handling.
func Read(baseWorkingDir, jobID string) (Record, error) {
	path := Path(baseWorkingDir, jobID)

	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("reading done file %q: %w", path, err)
	}

	var raw struct {
		ExitCode *int `json:"exitCode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("parsing done file %q: %w", path, err)
	}
	if raw.ExitCode == nil {
		return Record{}, fmt.Errorf("done file %q has no exitCode field", path)
	}

	return Record{ExitCode: *raw.ExitCode}, nil
}
