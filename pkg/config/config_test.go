package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnez/RRF-Loop/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rrfloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
task_name: loop
data_directory: /tmp/data
target_run_count: 3
min_trial_interval: 250ms
min_free_bytes: 1048576
sync_writes: true
jumps: [again, next]
store:
  type: sqlite
  dsn: /tmp/rrfloop.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "loop", cfg.TaskName)
	assert.Equal(t, "/tmp/data", cfg.DataDirectory)
	require.NotNil(t, cfg.TargetRunCount)
	assert.Equal(t, 3, *cfg.TargetRunCount)
	assert.Equal(t, 250*time.Millisecond, cfg.MinTrialInterval)
	assert.Equal(t, uint64(1048576), cfg.MinFreeBytes)
	assert.True(t, cfg.SyncWrites)
	assert.Equal(t, []string{"again", "next"}, cfg.Jumps)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "info", cfg.Logging.Level, "default applied")

	opts := cfg.LoopOptions()
	assert.Equal(t, 250*time.Millisecond, opts.MinTrialInterval)
	assert.True(t, opts.SyncWrites)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
task_name: loop
data_directory: /tmp/data
target_run_count: 3
`)
	t.Setenv("RRFLOOP_TARGET_RUN_COUNT", "7")
	t.Setenv("RRFLOOP_STORE_TYPE", "postgres")
	t.Setenv("RRFLOOP_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, *cfg.TargetRunCount)
	assert.Equal(t, "postgres", cfg.Store.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	t.Setenv("RRFLOOP_TASK_NAME", "env_loop")
	t.Setenv("RRFLOOP_DATA_DIRECTORY", t.TempDir())
	t.Setenv("RRFLOOP_TARGET_RUN_COUNT", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env_loop", cfg.TaskName)
	require.NotNil(t, cfg.TargetRunCount)
	assert.Equal(t, 0, *cfg.TargetRunCount, "zero is a valid target, not a missing key")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg []string
	}{
		{
			name:    "missing required keys",
			content: "sync_writes: true\n",
			wantMsg: []string{"task_name", "data_directory", "target_run_count"},
		},
		{
			name:    "negative target",
			content: "task_name: a\ndata_directory: /tmp\ntarget_run_count: -1\n",
			wantMsg: []string{"non-negative"},
		},
		{
			name:    "single jump",
			content: "task_name: a\ndata_directory: /tmp\ntarget_run_count: 1\njumps: [only]\n",
			wantMsg: []string{"jumps"},
		},
		{
			name:    "unknown store",
			content: "task_name: a\ndata_directory: /tmp\ntarget_run_count: 1\nstore:\n  type: mongodb\n",
			wantMsg: []string{"mongodb"},
		},
		{
			name:    "bad log format",
			content: "task_name: a\ndata_directory: /tmp\ntarget_run_count: 1\nlogging:\n  format: xml\n",
			wantMsg: []string{"logging.format"},
		},
		{
			name:    "short status token",
			content: "task_name: a\ndata_directory: /tmp\ntarget_run_count: 1\nstatus:\n  token: abc\n",
			wantMsg: []string{"status.token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)

			kind, ok := models.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, models.ErrorKindConfiguration, kind)
			for _, msg := range tt.wantMsg {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader(ExampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "practice_loop", cfg.TaskName)
	assert.Len(t, cfg.Jumps, 2)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader(ExampleConfig))
	require.NoError(t, err)

	data, err := Marshal(cfg)
	require.NoError(t, err)

	again, err := LoadReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestMarshalMasksToken(t *testing.T) {
	t.Setenv("RRFLOOP_STATUS_TOKEN", "a-long-enough-status-token")
	cfg, err := LoadReader(strings.NewReader(ExampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "a-long-enough-status-token", cfg.Status.Token)

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a-long-enough-status-token")
	assert.Equal(t, "a-long-enough-status-token", cfg.Status.Token, "marshal must not modify the config")
}

func TestDefinitionIsCopied(t *testing.T) {
	cfg := &Config{TaskName: "a", DataDirectory: "/tmp", TargetRunCount: models.IntPtr(2)}
	def := cfg.Definition()
	*cfg.TargetRunCount = 9

	assert.Equal(t, 2, def.Target())
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
components:
  - name: practice_loop
    jumps: [practice_block, test_block]
  - name: test_block
`))
	require.NoError(t, err)

	jumps, ok := m.Jumps("practice_loop")
	require.True(t, ok)
	assert.Equal(t, []string{"practice_block", "test_block"}, jumps)

	_, ok = m.Jumps("absent")
	assert.False(t, ok)

	_, err = ParseManifest([]byte("components:\n  - jumps: [a]\n"))
	assert.Error(t, err)

	_, err = ParseManifest([]byte("components:\n  - name: a\n  - name: a\n"))
	assert.Error(t, err)
}
