//go:build unix

package trial

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand(t *testing.T) {
	_, err := NewCommand(nil)
	assert.Error(t, err)

	_, err = NewCommand([]string{""})
	assert.Error(t, err)

	cmd, err := NewCommand([]string{"echo", "hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo", cmd.Path)
	assert.Equal(t, []string{"hello"}, cmd.Args)
}

func TestCommandRun(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantErr  bool
		wantExit int
	}{
		{"success", []string{"sh", "-c", "exit 0"}, false, 0},
		{"non-zero exit", []string{"sh", "-c", "exit 3"}, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewCommand(tt.argv)
			require.NoError(t, err)
			cmd.Stdout = &bytes.Buffer{}
			cmd.Stderr = &bytes.Buffer{}

			data, err := cmd.Run(context.Background(), 1)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, data)
			assert.Equal(t, tt.wantExit, data["exit_code"])
			assert.Greater(t, data["pid"], 0)
		})
	}
}

func TestCommandRun_ExportsRunNumber(t *testing.T) {
	cmd, err := NewCommand([]string{"sh", "-c", "echo $RRFLOOP_RUN"})
	require.NoError(t, err)
	var out bytes.Buffer
	cmd.Stdout = &out

	_, err = cmd.Func()(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "4\n", out.String())
}

func TestCommandRun_MissingProgram(t *testing.T) {
	cmd, err := NewCommand([]string{"/nonexistent/trial-program"})
	require.NoError(t, err)

	data, err := cmd.Run(context.Background(), 1)
	require.Error(t, err)
	assert.Nil(t, data)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestCommandRun_CancelledBeforeStart(t *testing.T) {
	cmd, err := NewCommand([]string{"sh", "-c", "exit 0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cmd.Run(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
