package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Definition is the host-supplied configuration for one component instance.
// It is assigned once before setup and never mutated by the component.
type Definition struct {
	TaskName       string `json:"task_name" yaml:"task_name" mapstructure:"task_name"`
	DataDirectory  string `json:"data_directory" yaml:"data_directory" mapstructure:"data_directory"`
	TargetRunCount *int   `json:"target_run_count" yaml:"target_run_count" mapstructure:"target_run_count"`
}

// Target returns the target run count, or 0 when unset
func (d Definition) Target() int {
	if d.TargetRunCount == nil {
		return 0
	}
	return *d.TargetRunCount
}

// Validate reports every missing or invalid key at once
func (d Definition) Validate() error {
	var errs []error
	if strings.TrimSpace(d.TaskName) == "" {
		errs = append(errs, NewComponentError(ErrorKindConfiguration, "configure", "missing required key", errors.New("task_name")))
	}
	if strings.TrimSpace(d.DataDirectory) == "" {
		errs = append(errs, NewComponentError(ErrorKindConfiguration, "configure", "missing required key", errors.New("data_directory")))
	}
	if d.TargetRunCount == nil {
		errs = append(errs, NewComponentError(ErrorKindConfiguration, "configure", "missing required key", errors.New("target_run_count")))
	} else if *d.TargetRunCount < 0 {
		errs = append(errs, NewComponentError(ErrorKindConfiguration, "configure",
			fmt.Sprintf("target_run_count must be non-negative, got %d", *d.TargetRunCount), nil))
	}
	return errors.Join(errs...)
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// Outcome is what the host learns when a component hands control back
type Outcome struct {
	SessionID   string    `json:"session_id"`
	TaskName    string    `json:"task_name"`
	RunCount    int       `json:"run_count"`
	TargetCount int       `json:"target_count"`
	BranchIndex int       `json:"branch_index"`
	NextJump    string    `json:"next_jump,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}
