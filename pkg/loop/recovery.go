package loop

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tnez/RRF-Loop/pkg/models"
	"github.com/tnez/RRF-Loop/pkg/rawdata"
	"github.com/tnez/RRF-Loop/pkg/tracing"
)

// ShouldRecover reports whether the raw data file holds an interrupted session:
// at least one complete trial record and no end record. A file that cannot be
// parsed also reports true, so Recover gets to surface the failure instead of
// a fresh session being started on top of it.
func (c *Controller) ShouldRecover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == models.StateUninitialized || c.state == models.StateTornDown {
		return false
	}

	summary, err := rawdata.Scan(c.rawDataPathLocked())
	if err != nil {
		return summary.Exists
	}
	return summary.Resumable()
}

// Recover rebuilds the run counter from the raw data file and reopens it for
// appending. A partially written final record is discarded and never counted.
// Any other problem with the file is a recovery failure: it is logged, the
// component drops back to configured and the run counter is left untouched.
func (c *Controller) Recover() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, span := tracing.StartSpan(context.Background(), "loop.recover",
		attribute.String("task", c.def.TaskName))
	defer span.End()

	if !models.CanRecover(c.state) {
		err := c.failLocked(models.NewComponentError(models.ErrorKindState, "recover",
			fmt.Sprintf("cannot recover from %s", c.state), nil))
		tracing.SetError(span, err)
		return err
	}
	if err := c.transitionLocked(models.StateRecovering, "recover"); err != nil {
		return err
	}

	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.logger.Warn("Failed to close raw data file before recovery", map[string]interface{}{"error": err.Error()})
		}
		c.writer = nil
	}

	summary, err := c.reconstructLocked()
	if err != nil {
		ce := models.NewComponentError(models.ErrorKindRecovery, "recover", "cannot resume session", err)
		c.registerErrorLocked(models.ErrorKindRecovery, ce.Error())
		c.metrics.RecoveryAttempted(c.def.TaskName, false, 0)
		_ = c.transitionLocked(models.StateConfigured, "recover")
		tracing.SetError(span, ce)
		return ce
	}

	w, err := rawdata.Resume(summary, c.opts.SyncWrites)
	if err != nil {
		ce := models.NewComponentError(models.ErrorKindRecovery, "recover", "cannot reopen raw data file", err)
		c.registerErrorLocked(models.ErrorKindRecovery, ce.Error())
		c.metrics.RecoveryAttempted(c.def.TaskName, false, 0)
		_ = c.transitionLocked(models.StateConfigured, "recover")
		tracing.SetError(span, ce)
		return ce
	}

	if summary.Partial {
		c.logger.Warn("Discarded partial trailing record", map[string]interface{}{
			"bytes": summary.Size - summary.ValidSize,
		})
	}
	if summary.Header.Target != c.def.Target() {
		c.logger.Warn("Target run count differs from recovered session", map[string]interface{}{
			"recovered_target": summary.Header.Target,
			"target":           c.def.Target(),
		})
	}

	c.writer = w
	c.runCount = w.Runs()
	c.sessionID = summary.Header.SessionID
	c.metrics.RecoveryAttempted(c.def.TaskName, true, c.runCount)
	c.logger.Info("Session recovered", map[string]interface{}{
		"session_id": c.sessionID,
		"runs":       c.runCount,
	})
	span.SetAttributes(attribute.Int("runs", c.runCount))

	return c.transitionLocked(models.StateReady, "recover")
}

func (c *Controller) reconstructLocked() (*rawdata.Summary, error) {
	summary, err := rawdata.Scan(c.rawDataPathLocked())
	if err != nil {
		return nil, err
	}
	switch {
	case !summary.Exists:
		return nil, errors.New("raw data file does not exist")
	case summary.Header == nil:
		return nil, fmt.Errorf("%w: raw data file has no header", models.ErrCorruptRawData)
	case summary.Header.TaskName != c.def.TaskName:
		return nil, fmt.Errorf("raw data file belongs to task %q", summary.Header.TaskName)
	case summary.Terminated:
		return nil, errors.New("session in raw data file already ended")
	}
	return summary, nil
}
