// Package runlog writes the per-run bookkeeping records: a task_start.json
// when a run begins and a task_finish.json with the exit status when it ends.
// Each is written exactly once per run.
package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	// StartFileName is the record written at run start.
	StartFileName = "task_start.json"

	// FinishFileName is the record written when the run ends.
	FinishFileName = "task_finish.json"

	// LogFileName is the file log written when file logging is enabled.
	LogFileName = "output.log"
)

// StartRecord captures what is about to run.
type StartRecord struct {
	StartTime int64  `json:"start_time"`
	Version   string `json:"version"`
	Args      any    `json:"commandlineargs,omitempty"`
}

// FinishRecord captures how the run ended. Status 0 means success; nonzero
// values identify the failure category.
type FinishRecord struct {
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
	Status    int   `json:"status"`
}

// WriteStart writes the task start record into outdir.
func WriteStart(outdir string, rec StartRecord) error {
	return writeJSON(filepath.Join(outdir, StartFileName), rec)
}

// WriteFinish writes the task finish record into outdir.
func WriteFinish(outdir string, rec FinishRecord) error {
	return writeJSON(filepath.Join(outdir, FinishFileName), rec)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// LogPath returns the location of the run's log file inside outdir.
func LogPath(outdir string) string {
	return filepath.Join(outdir, LogFileName)
}
