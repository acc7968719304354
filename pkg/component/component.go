// Package component defines the contract between a session host and the task
// components it sequences.
package component

import (
	"context"

	"github.com/tnez/RRF-Loop/pkg/models"
)

// Component is the operation set a host drives. The host calls Configure and
// AttachDelegate, then either Setup or (after a crash) ShouldRecover/Recover,
// then IsClearedToBegin and Begin. When Begin returns, the host reads
// BranchIndex and ErrorLog and picks the successor from its jump table.
type Component interface {
	// Configure assigns the definition. It may only succeed once.
	Configure(def models.Definition) error
	// AttachDelegate assigns the host back reference. The component never owns it.
	AttachDelegate(d Delegate)
	// Setup initializes counters, logs and the raw data file.
	Setup() error
	// IsClearedToBegin reports readiness. Failure reasons go to the error log.
	IsClearedToBegin() bool
	// Begin runs one trial and blocks until it completes.
	Begin(ctx context.Context) error
	// BranchIndex is 0 for the normal jump and 1 for the overrun jump.
	BranchIndex() (int, error)
	// ErrorLog returns a snapshot of every registered error in order.
	ErrorLog() []string
	// RegisterError appends to the error log. It never fails.
	RegisterError(message string)

	TaskName() string
	DataDirectory() string
	RawDataFile() string

	// ShouldRecover reports whether an interrupted session is on disk.
	ShouldRecover() bool
	// Recover rebuilds the run counter from the raw data file.
	Recover() error

	// TearDown releases resources. It is idempotent.
	TearDown() error
	// MainView returns the surface the host presents to the subject.
	MainView() Surface
}

// Delegate is the host side of the contract
type Delegate interface {
	// ComponentDidFinish is called after a trial was recorded
	ComponentDidFinish(sender Component)
	// ComponentDidFail is called when a trial could not be recorded
	ComponentDidFail(sender Component, err error)
}

// Surface is an opaque displayable handle owned by the presentation layer
type Surface interface{}

// Summarizer is implemented by components that supply their own data file
// headers and end-of-session summary.
type Summarizer interface {
	RunHeader() string
	SessionHeader() string
	Summary() string
}
