// Package trial provides trial implementations for the loop component.
package trial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/tnez/RRF-Loop/pkg/loop"
)

// Command runs an external program once per trial: the stimulus or task
// program the subject performs. A non-zero exit is a failed trial.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string // appended to the runner's environment
	Stdout io.Writer
	Stderr io.Writer
}

// NewCommand builds a Command from an argv slice
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("trial command is empty")
	}
	return &Command{
		Path:   argv[0],
		Args:   argv[1:],
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

// Func adapts the command to the loop trial signature. The run number is
// exported to the program as RRFLOOP_RUN.
func (c *Command) Func() loop.TrialFunc {
	return c.Run
}

// Run starts the program and waits for it. The program is placed in its own
// process group so a signal to the runner does not interrupt a trial in progress.
func (c *Command) Run(ctx context.Context, run int) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("RRFLOOP_RUN=%d", run))
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.SysProcAttr = detachedProcAttr()

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	pid := cmd.Process.Pid

	err := cmd.Wait()
	data := map[string]interface{}{
		"pid":        pid,
		"exit_code":  cmd.ProcessState.ExitCode(),
		"elapsed_ms": time.Since(started).Milliseconds(),
		"command":    c.Path,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return data, fmt.Errorf("trial program exited with code %d", exitErr.ExitCode())
	}
	if err != nil {
		return data, fmt.Errorf("trial program failed: %w", err)
	}
	return data, nil
}
