// Package rawdata reads and writes the per-component raw data file.
//
// The file is JSON Lines. The first line is a header record, each completed
// trial appends one trial record, and a session that ended normally is closed
// by an end record. A final line with no trailing newline, or a final line that
// does not decode, is a partially written record and is discarded on recovery.
package rawdata

import (
	"strings"
	"time"
	"unicode"
)

// RecordType distinguishes lines in the raw data file
type RecordType string

const (
	RecordHeader RecordType = "header"
	RecordTrial  RecordType = "trial"
	RecordEnd    RecordType = "end"
)

// Record is one self-delimited line of the raw data file
type Record struct {
	Type       RecordType             `json:"type"`
	Time       time.Time              `json:"time"`
	SessionID  string                 `json:"session_id,omitempty"`
	TaskName   string                 `json:"task_name,omitempty"`
	Target     int                    `json:"target,omitempty"`
	Run        int                    `json:"run,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// FileName returns the raw data file name for a task
func FileName(taskName string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, strings.TrimSpace(taskName))
	if name == "" {
		name = "component"
	}
	return name + "_raw.jsonl"
}
