// Package loop implements the loop component: a session component that counts
// its own runs and offsets the host's jump by one once the run count exceeds
// the configured target.
package loop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/tnez/RRF-Loop/pkg/component"
	"github.com/tnez/RRF-Loop/pkg/errlog"
	"github.com/tnez/RRF-Loop/pkg/logging"
	"github.com/tnez/RRF-Loop/pkg/metrics"
	"github.com/tnez/RRF-Loop/pkg/models"
	"github.com/tnez/RRF-Loop/pkg/rawdata"
	"github.com/tnez/RRF-Loop/pkg/tracing"
)

// TrialFunc executes one trial. It returns data stored with the trial record.
type TrialFunc func(ctx context.Context, run int) (map[string]interface{}, error)

// passThrough is the default trial: a loop marker completes as soon as it is entered
func passThrough(context.Context, int) (map[string]interface{}, error) {
	return nil, nil
}

// Options tunes the controller beyond the host definition
type Options struct {
	MinTrialInterval time.Duration // minimum spacing between trial starts
	MinFreeBytes     uint64        // readiness requires this much free space in the data directory
	SyncWrites       bool          // fsync the raw data file after every record
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the operational logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.ComponentMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithSurface sets the displayable surface handed out by MainView
func WithSurface(s component.Surface) Option {
	return func(c *Controller) { c.surface = s }
}

// WithTrial replaces the pass-through trial
func WithTrial(fn TrialFunc) Option {
	return func(c *Controller) { c.trial = fn }
}

// WithOptions sets pacing, readiness and durability options
func WithOptions(o Options) Option {
	return func(c *Controller) { c.opts = o }
}

var (
	_ component.Component  = (*Controller)(nil)
	_ component.Summarizer = (*Controller)(nil)
)

// Controller is the loop component
type Controller struct {
	mu sync.Mutex

	def      models.Definition
	delegate component.Delegate
	state    models.ComponentState
	runCount int

	errors    *errlog.Log
	writer    *rawdata.Writer
	sessionID string

	opts    Options
	limiter *rate.Limiter
	trial   TrialFunc
	surface component.Surface
	logger  *logging.Logger
	metrics *metrics.ComponentMetrics
	now     func() time.Time
}

// NewController creates an unconfigured loop component
func NewController(opts ...Option) *Controller {
	c := &Controller{
		state:  models.StateUninitialized,
		errors: errlog.New(),
		trial:  passThrough,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewComponentMetrics()
	}
	if c.opts.MinTrialInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(c.opts.MinTrialInterval), 1)
	}
	return c
}

// Configure assigns the definition. Missing or invalid keys leave the
// component uninitialized and are reported through the error log.
func (c *Controller) Configure(def models.Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != models.StateUninitialized {
		return c.failLocked(models.NewComponentError(models.ErrorKindState, "configure",
			"definition already assigned", nil))
	}

	if err := def.Validate(); err != nil {
		ce := models.NewComponentError(models.ErrorKindConfiguration, "configure", "invalid definition", err)
		c.registerErrorLocked(models.ErrorKindConfiguration, ce.Error())
		return ce
	}

	target := def.Target()
	def.TargetRunCount = &target
	c.def = def
	c.logger = c.logger.WithField("task", def.TaskName)

	return c.transitionLocked(models.StateConfigured, "configure")
}

// AttachDelegate assigns the host back reference
func (c *Controller) AttachDelegate(d component.Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// Setup starts a fresh session: run counter at zero and a new raw data file.
// An existing raw data file is archived rather than overwritten.
func (c *Controller) Setup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := models.ValidateTransition(c.state, models.StateReady); err != nil || c.state != models.StateConfigured {
		return c.failLocked(models.NewComponentError(models.ErrorKindState, "setup",
			fmt.Sprintf("cannot set up from %s", c.state), err))
	}

	path := c.rawDataPathLocked()
	backup, err := rawdata.Archive(path, c.now())
	if err != nil {
		return c.failLocked(models.NewComponentError(models.ErrorKindReadiness, "setup",
			"could not archive previous raw data file", err))
	}
	if backup != "" {
		c.logger.Warn("Archived previous raw data file", map[string]interface{}{"backup": backup})
	}

	sessionID := uuid.New().String()
	w, err := rawdata.Create(path, rawdata.Record{
		Time:      c.now(),
		SessionID: sessionID,
		TaskName:  c.def.TaskName,
		Target:    c.def.Target(),
	}, c.opts.SyncWrites)
	if err != nil {
		return c.failLocked(models.NewComponentError(models.ErrorKindReadiness, "setup",
			"could not create raw data file", err))
	}

	c.writer = w
	c.sessionID = sessionID
	c.runCount = 0
	c.metrics.RunCountReset(c.def.TaskName)
	c.logger.Info("Component set up", map[string]interface{}{
		"session_id": sessionID,
		"raw_data":   w.Path(),
		"target":     c.def.Target(),
	})

	return c.transitionLocked(models.StateReady, "setup")
}

// IsClearedToBegin reports whether Begin may run. Every failing check is
// appended to the error log; nothing else changes.
func (c *Controller) IsClearedToBegin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearedLocked() == nil
}

func (c *Controller) clearedLocked() error {
	var errs []error
	report := func(kind models.ErrorKind, message string, cause error) {
		ce := models.NewComponentError(kind, "is_cleared_to_begin", message, cause)
		c.registerErrorLocked(kind, ce.Error())
		errs = append(errs, ce)
	}

	if c.state == models.StateUninitialized {
		report(models.ErrorKindConfiguration, "definition not assigned", nil)
		return errors.Join(errs...)
	}
	if c.delegate == nil {
		report(models.ErrorKindConfiguration, "delegate not attached", nil)
	}
	if !models.CanBegin(c.state) {
		report(models.ErrorKindState, fmt.Sprintf("component is %s, expected %s", c.state, models.StateReady), nil)
	}
	if err := checkDataDirectory(c.def.DataDirectory, c.opts.MinFreeBytes); err != nil {
		report(models.ErrorKindReadiness, "data directory check failed", err)
	}
	if c.writer == nil && models.CanBegin(c.state) {
		report(models.ErrorKindReadiness, "raw data file not open", nil)
	}
	return errors.Join(errs...)
}

// Begin runs one trial. It blocks for the inter-trial interval and the trial
// itself. A failed trial leaves the run counter unchanged.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if err := c.clearedLocked(); err != nil {
		c.registerErrorLocked(models.ErrorKindState, "begin refused: component is not cleared to begin")
		c.mu.Unlock()
		return models.NewComponentError(models.ErrorKindState, "begin", "not cleared to begin", err)
	}
	if err := c.transitionLocked(models.StateRunning, "begin"); err != nil {
		c.mu.Unlock()
		return err
	}
	run := c.runCount + 1
	task := c.def.TaskName
	trial := c.trial
	limiter := c.limiter
	c.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "loop.begin",
		attribute.String("task", task),
		attribute.Int("run", run),
	)
	defer span.End()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			ce := models.NewComponentError(models.ErrorKindTrial, "begin", "trial did not start", err)
			tracing.SetError(span, ce)
			c.finishTrial(nil, ce)
			return ce
		}
	}

	start := c.now()
	data, err := trial(ctx, run)
	elapsed := c.now().Sub(start)

	if err != nil {
		ce := models.NewComponentError(models.ErrorKindTrial, "begin", fmt.Sprintf("trial %d failed", run), err)
		tracing.SetError(span, ce)
		c.finishTrial(nil, ce)
		return ce
	}

	rec := &rawdata.Record{Time: c.now(), DurationMs: elapsed.Milliseconds(), Data: data}
	if err := c.finishTrial(rec, nil); err != nil {
		tracing.SetError(span, err)
		return err
	}
	return nil
}

// finishTrial records the outcome of a trial and hands control back to the delegate
func (c *Controller) finishTrial(rec *rawdata.Record, trialErr error) error {
	c.mu.Lock()

	if c.state != models.StateRunning {
		// Torn down while the trial was executing
		err := models.NewComponentError(models.ErrorKindState, "begin",
			fmt.Sprintf("component became %s during trial", c.state), trialErr)
		c.registerErrorLocked(models.ErrorKindState, err.Error())
		c.mu.Unlock()
		return err
	}

	failErr := trialErr
	if failErr == nil {
		run, err := c.writer.AppendTrial(*rec)
		if err != nil {
			failErr = models.NewComponentError(models.ErrorKindTrial, "begin", "could not record trial", err)
		} else {
			c.runCount = run
			c.metrics.TrialCompleted(c.def.TaskName, run, float64(rec.DurationMs)/1000)
			c.metrics.BranchDecided(c.def.TaskName, DecideBranch(run, c.def.Target()))
			c.logger.Info("Trial recorded", map[string]interface{}{"run": run, "target": c.def.Target()})
		}
	}

	delegate := c.delegate
	if failErr != nil {
		c.registerErrorLocked(models.ErrorKindTrial, failErr.Error())
		c.metrics.TrialFailed(c.def.TaskName)
		_ = c.transitionLocked(models.StateReady, "begin")
		c.mu.Unlock()
		if delegate != nil {
			delegate.ComponentDidFail(c, failErr)
		}
		return failErr
	}

	if DecideBranch(c.runCount, c.def.Target()) == OverrunBranch {
		if err := c.completeLocked(); err != nil {
			c.mu.Unlock()
			if delegate != nil {
				delegate.ComponentDidFail(c, err)
			}
			return err
		}
	} else {
		_ = c.transitionLocked(models.StateReady, "begin")
	}
	c.mu.Unlock()

	if delegate != nil {
		delegate.ComponentDidFinish(c)
	}
	return nil
}

// Complete ends the session on the host's say-so and writes the terminal marker
func (c *Controller) Complete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != models.StateReady {
		return c.failLocked(models.NewComponentError(models.ErrorKindState, "complete",
			fmt.Sprintf("cannot complete from %s", c.state), nil))
	}
	return c.completeLocked()
}

func (c *Controller) completeLocked() error {
	if err := c.writer.Finish(); err != nil {
		ce := models.NewComponentError(models.ErrorKindTrial, "complete", "could not write end record", err)
		c.registerErrorLocked(models.ErrorKindTrial, ce.Error())
		if c.state == models.StateRunning {
			_ = c.transitionLocked(models.StateReady, "complete")
		}
		return ce
	}
	c.logger.Info("Session completed", map[string]interface{}{
		"runs":   c.runCount,
		"branch": DecideBranch(c.runCount, c.def.Target()),
	})
	return c.transitionLocked(models.StateCompleted, "complete")
}

// BranchIndex computes the jump offset from the current run counter.
// It fails with models.ErrNoCompletedRuns until a trial has completed.
func (c *Controller) BranchIndex() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runCount == 0 {
		return NormalBranch, models.ErrNoCompletedRuns
	}
	return DecideBranch(c.runCount, c.def.Target()), nil
}

// Definition returns a copy of the assigned definition
func (c *Controller) Definition() models.Definition {
	c.mu.Lock()
	defer c.mu.Unlock()
	def := c.def
	if def.TargetRunCount != nil {
		def.TargetRunCount = models.IntPtr(*def.TargetRunCount)
	}
	return def
}

// RunCount returns the number of completed trials
func (c *Controller) RunCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runCount
}

// State returns the lifecycle state
func (c *Controller) State() models.ComponentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id written to the raw data header
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ErrorLog returns a snapshot of the error log
func (c *Controller) ErrorLog() []string {
	return c.errors.Messages()
}

// RegisterError appends message to the error log. Safe in any state.
func (c *Controller) RegisterError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerErrorLocked("registered", message)
}

func (c *Controller) registerErrorLocked(kind models.ErrorKind, message string) {
	c.errors.Append(message)
	c.metrics.ErrorRegistered(c.def.TaskName, string(kind))
	c.logger.Warn(message, map[string]interface{}{"kind": string(kind)})
}

// failLocked logs err to the error log and returns it
func (c *Controller) failLocked(err *models.ComponentError) error {
	c.registerErrorLocked(err.Kind, err.Error())
	return err
}

func (c *Controller) transitionLocked(to models.ComponentState, op string) error {
	if err := models.ValidateTransition(c.state, to); err != nil {
		return c.failLocked(models.NewComponentError(models.ErrorKindState, op, "state transition rejected", err))
	}
	c.logger.Debug("State transition", map[string]interface{}{"from": string(c.state), "to": string(to)})
	c.state = to
	return nil
}

// TaskName returns the configured task name
func (c *Controller) TaskName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.def.TaskName
}

// DataDirectory returns the configured data directory
func (c *Controller) DataDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.def.DataDirectory
}

// RawDataFile returns the raw data file name inside the data directory
func (c *Controller) RawDataFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == models.StateUninitialized {
		return ""
	}
	return rawdata.FileName(c.def.TaskName)
}

func (c *Controller) rawDataPathLocked() string {
	return filepath.Join(c.def.DataDirectory, rawdata.FileName(c.def.TaskName))
}

// TearDown closes the raw data file. The error log stays readable.
func (c *Controller) TearDown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == models.StateTornDown {
		return nil
	}

	var closeErr error
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			closeErr = models.NewComponentError(models.ErrorKindReadiness, "tear_down", "could not close raw data file", err)
			c.registerErrorLocked(models.ErrorKindReadiness, closeErr.Error())
		}
		c.writer = nil
	}

	c.logger.Info("Component torn down", map[string]interface{}{"runs": c.runCount})
	c.state = models.StateTornDown
	return closeErr
}

// MainView returns the surface supplied by the presentation layer, if any
func (c *Controller) MainView() component.Surface {
	return c.surface
}

// RunHeader returns the column header for trial rows in the data file
func (c *Controller) RunHeader() string {
	return "task\tsession\trun\ttime\tduration_ms"
}

// SessionHeader describes the session at the top of the data file
func (c *Controller) SessionHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Task: %s\nSession: %s\nTarget runs: %d\n", c.def.TaskName, c.sessionID, c.def.Target())
}

// Summary reports the run counter against the target and the branch taken
func (c *Controller) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	branch := "none"
	if c.runCount > 0 {
		if DecideBranch(c.runCount, c.def.Target()) == OverrunBranch {
			branch = "overrun"
		} else {
			branch = "normal"
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Runs completed: %d of %d\nBranch: %s\nErrors: %d\n",
		c.runCount, c.def.Target(), branch, c.errors.Len())
	for _, e := range c.errors.Entries() {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	return b.String()
}
