// Package host drives a single component the way a session runner would:
// configure, recover or set up, run trials, follow the jump table.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tnez/RRF-Loop/pkg/component"
	"github.com/tnez/RRF-Loop/pkg/logging"
	"github.com/tnez/RRF-Loop/pkg/models"
	"github.com/tnez/RRF-Loop/pkg/store"
)

// Inspector is implemented by components that expose their progress
type Inspector interface {
	RunCount() int
	SessionID() string
	State() models.ComponentState
}

// Completer is implemented by components the host can end early
type Completer interface {
	Complete() error
}

var (
	// ErrNotCleared is returned when the component refuses to begin
	ErrNotCleared = errors.New("component not cleared to begin")
	// ErrTooManyFailures stops a run after consecutive trial failures
	ErrTooManyFailures = errors.New("too many consecutive trial failures")
)

// Options bound a run
type Options struct {
	MaxTrials              int  // completed trials before the session is ended; 0 runs until the overrun branch
	MaxConsecutiveFailures int  // 0 never gives up
	Fresh                  bool // ignore an interrupted session and start over
}

// Runner implements component.Delegate for one component
type Runner struct {
	comp   component.Component
	jumps  []string
	store  store.Store
	logger *logging.Logger
	opts   Options
	now    func() time.Time

	mu       sync.Mutex
	last     *models.Outcome
	failures int
	lastErr  error
}

var _ component.Delegate = (*Runner)(nil)

// NewRunner creates a runner. jumps[i] is the successor for branch index i.
func NewRunner(comp component.Component, jumps []string, s store.Store, logger *logging.Logger, opts Options) *Runner {
	if s == nil {
		s = store.NewMemoryStore()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		comp:   comp,
		jumps:  jumps,
		store:  s,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Start configures the component and either resumes an interrupted session or
// sets up a fresh one. It reports whether the session was resumed.
func (r *Runner) Start(def models.Definition) (bool, error) {
	if err := r.comp.Configure(def); err != nil {
		return false, err
	}
	r.comp.AttachDelegate(r)

	resumed := false
	if !r.opts.Fresh && r.comp.ShouldRecover() {
		if err := r.comp.Recover(); err != nil {
			return false, fmt.Errorf("interrupted session could not be resumed (use a fresh start to archive it): %w", err)
		}
		resumed = true
	} else if err := r.comp.Setup(); err != nil {
		return false, err
	}

	if !r.comp.IsClearedToBegin() {
		return resumed, fmt.Errorf("%w: %s", ErrNotCleared, strings.Join(r.comp.ErrorLog(), "; "))
	}

	fields := map[string]interface{}{"task": r.comp.TaskName(), "resumed": resumed}
	if in, ok := r.comp.(Inspector); ok {
		fields["runs"] = in.RunCount()
		fields["session_id"] = in.SessionID()
	}
	r.logger.Info("Component started", fields)
	return resumed, nil
}

// Run calls Begin until the component takes the overrun branch, the trial
// limit is reached, ctx is cancelled or too many trials fail in a row.
// It returns the last recorded outcome.
func (r *Runner) Run(ctx context.Context) (*models.Outcome, error) {
	trials := 0
	for {
		if err := ctx.Err(); err != nil {
			return r.Last(), err
		}
		if r.opts.MaxTrials > 0 && trials >= r.opts.MaxTrials {
			r.completeEarly()
			return r.Last(), nil
		}
		if r.finished() {
			return r.Last(), nil
		}
		if !r.comp.IsClearedToBegin() {
			return r.Last(), fmt.Errorf("%w: %s", ErrNotCleared, strings.Join(r.comp.ErrorLog(), "; "))
		}

		if err := r.comp.Begin(ctx); err != nil {
			r.mu.Lock()
			failures := r.failures
			r.mu.Unlock()
			if ctx.Err() != nil {
				return r.Last(), ctx.Err()
			}
			if r.opts.MaxConsecutiveFailures > 0 && failures >= r.opts.MaxConsecutiveFailures {
				return r.Last(), fmt.Errorf("%w: %v", ErrTooManyFailures, err)
			}
			continue
		}
		trials++

		if r.finished() {
			return r.Last(), nil
		}
	}
}

// finished reports whether the component ended its session
func (r *Runner) finished() bool {
	if in, ok := r.comp.(Inspector); ok {
		return models.IsTerminalState(in.State())
	}
	idx, err := r.comp.BranchIndex()
	return err == nil && idx == 1
}

func (r *Runner) completeEarly() {
	c, ok := r.comp.(Completer)
	if !ok {
		return
	}
	if in, ok := r.comp.(Inspector); ok && in.State() != models.StateReady {
		return
	}
	if err := c.Complete(); err != nil {
		r.logger.Warn("Could not complete session", map[string]interface{}{"error": err.Error()})
	}
}

// ComponentDidFinish records the hand-back and resolves the successor
func (r *Runner) ComponentDidFinish(sender component.Component) {
	outcome := r.outcome(sender)

	r.mu.Lock()
	r.failures = 0
	r.last = outcome
	r.mu.Unlock()

	if err := r.store.RecordOutcome(context.Background(), outcome); err != nil {
		r.logger.Error("Failed to record outcome", map[string]interface{}{"error": err.Error()})
	}
	r.logger.Info("Component finished", map[string]interface{}{
		"runs":   outcome.RunCount,
		"branch": outcome.BranchIndex,
		"next":   outcome.NextJump,
	})
}

// ComponentDidFail counts the failure; the component already logged it
func (r *Runner) ComponentDidFail(sender component.Component, err error) {
	r.mu.Lock()
	r.failures++
	r.lastErr = err
	failures := r.failures
	r.mu.Unlock()

	r.logger.Warn("Component failed", map[string]interface{}{
		"task":        sender.TaskName(),
		"error":       err.Error(),
		"consecutive": failures,
	})
}

func (r *Runner) outcome(sender component.Component) *models.Outcome {
	o := &models.Outcome{
		TaskName:   sender.TaskName(),
		Errors:     sender.ErrorLog(),
		RecordedAt: r.now(),
	}
	if in, ok := sender.(Inspector); ok {
		o.SessionID = in.SessionID()
		o.RunCount = in.RunCount()
	}
	if idx, err := sender.BranchIndex(); err == nil {
		o.BranchIndex = idx
		o.NextJump, _ = r.Resolve(idx)
	}
	if t, ok := sender.(interface{ Definition() models.Definition }); ok {
		o.TargetCount = t.Definition().Target()
	}
	return o
}

// Resolve returns the jump table entry for a branch index
func (r *Runner) Resolve(idx int) (string, error) {
	if idx < 0 || idx >= len(r.jumps) {
		return "", fmt.Errorf("no jump table entry for branch %d", idx)
	}
	return r.jumps[idx], nil
}

// Last returns a copy of the most recent outcome, or nil
func (r *Runner) Last() *models.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	return &cp
}

// Status is the snapshot served on /status
type Status struct {
	Task        string   `json:"task"`
	SessionID   string   `json:"session_id,omitempty"`
	State       string   `json:"state,omitempty"`
	RunCount    int      `json:"run_count"`
	BranchIndex *int     `json:"branch_index,omitempty"`
	NextJump    string   `json:"next_jump,omitempty"`
	Failures    int      `json:"consecutive_failures"`
	LastError   string   `json:"last_error,omitempty"`
	Errors      []string `json:"errors"`
}

// Status reports the component's progress
func (r *Runner) Status() Status {
	s := Status{
		Task:   r.comp.TaskName(),
		Errors: r.comp.ErrorLog(),
	}
	if in, ok := r.comp.(Inspector); ok {
		s.SessionID = in.SessionID()
		s.State = string(in.State())
		s.RunCount = in.RunCount()
	}

	r.mu.Lock()
	if r.last != nil {
		idx := r.last.BranchIndex
		s.BranchIndex = &idx
		s.NextJump = r.last.NextJump
	}
	s.Failures = r.failures
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	r.mu.Unlock()
	return s
}

// Close tears the component down
func (r *Runner) Close() error {
	return r.comp.TearDown()
}
