package rawdata

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnez/RRF-Loop/pkg/models"
)

const header = `{"type":"header","time":"2024-01-01T00:00:00Z","session_id":"s1","task_name":"loop","target":3}` + "\n"

func trialLine(run int) string {
	return `{"type":"trial","time":"2024-01-01T00:00:01Z","run":` + strconv.Itoa(run) + `}` + "\n"
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loop_raw.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScan(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		wantTrials     int
		wantPartial    bool
		wantTerminated bool
		wantResumable  bool
		wantCorrupt    bool
	}{
		{
			name:          "two complete trials",
			content:       header + trialLine(1) + trialLine(2),
			wantTrials:    2,
			wantResumable: true,
		},
		{
			name:          "partial trailing line without newline",
			content:       header + trialLine(1) + trialLine(2) + `{"type":"trial","ru`,
			wantTrials:    2,
			wantPartial:   true,
			wantResumable: true,
		},
		{
			name:          "corrupt trailing line with newline",
			content:       header + trialLine(1) + trialLine(2) + "{garbage\n",
			wantTrials:    2,
			wantPartial:   true,
			wantResumable: true,
		},
		{
			name:           "terminated session",
			content:        header + trialLine(1) + `{"type":"end","time":"2024-01-01T00:00:02Z"}` + "\n",
			wantTrials:     1,
			wantTerminated: true,
		},
		{
			name:       "header only",
			content:    header,
			wantTrials: 0,
		},
		{
			name:        "partial header",
			content:     `{"type":"hea`,
			wantPartial: true,
		},
		{
			name:        "corrupt middle line",
			content:     header + "{garbage\n" + trialLine(1),
			wantCorrupt: true,
		},
		{
			name:        "run numbers skip",
			content:     header + trialLine(1) + trialLine(3),
			wantCorrupt: true,
		},
		{
			name:        "trial before header",
			content:     trialLine(1),
			wantCorrupt: true,
		},
		{
			name:        "record after end",
			content:     header + `{"type":"end","time":"2024-01-01T00:00:02Z"}` + "\n" + trialLine(1),
			wantCorrupt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content)

			summary, err := Scan(path)
			if tt.wantCorrupt {
				require.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrCorruptRawData), "expected ErrCorruptRawData, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, summary.Exists)
			assert.Equal(t, tt.wantTrials, summary.Trials)
			assert.Equal(t, tt.wantPartial, summary.Partial)
			assert.Equal(t, tt.wantTerminated, summary.Terminated)
			assert.Equal(t, tt.wantResumable, summary.Resumable())
		})
	}
}

func TestScan_MissingFile(t *testing.T) {
	summary, err := Scan(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.False(t, summary.Exists)
	assert.False(t, summary.Resumable())
}

func TestWriter_CreateAppendFinish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", FileName("loop"))

	w, err := Create(path, Record{SessionID: "abc", TaskName: "loop", Target: 2}, true)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		run, err := w.AppendTrial(Record{DurationMs: 5})
		require.NoError(t, err)
		assert.Equal(t, i, run)
	}
	require.NoError(t, w.Finish())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close should be a no-op")

	summary, err := Scan(path)
	require.NoError(t, err)
	require.NotNil(t, summary.Header)
	assert.Equal(t, "abc", summary.Header.SessionID)
	assert.Equal(t, 3, summary.Trials)
	assert.True(t, summary.Terminated)

	_, err = w.AppendTrial(Record{})
	assert.Error(t, err, "append after close must fail")
}

func TestResume_DiscardsPartialRecord(t *testing.T) {
	path := writeFile(t, header+trialLine(1)+trialLine(2)+`{"type":"trial","ru`)

	summary, err := Scan(path)
	require.NoError(t, err)
	require.True(t, summary.Partial)

	w, err := Resume(summary, false)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Runs())

	run, err := w.AppendTrial(Record{})
	require.NoError(t, err)
	assert.Equal(t, 3, run)
	require.NoError(t, w.Close())

	summary, err = Scan(path)
	require.NoError(t, err)
	assert.False(t, summary.Partial)
	assert.Equal(t, 3, summary.Trials)
}

func TestResume_Rejects(t *testing.T) {
	terminated := writeFile(t, header+trialLine(1)+`{"type":"end","time":"2024-01-01T00:00:02Z"}`+"\n")
	summary, err := Scan(terminated)
	require.NoError(t, err)
	_, err = Resume(summary, false)
	assert.Error(t, err)

	headerless := writeFile(t, `{"type":"hea`)
	summary, err = Scan(headerless)
	require.NoError(t, err)
	_, err = Resume(summary, false)
	assert.Error(t, err)

	_, err = Resume(nil, false)
	assert.Error(t, err)
}

func TestArchive(t *testing.T) {
	path := writeFile(t, header)
	now := time.Date(2024, 3, 2, 1, 2, 3, 0, time.UTC)

	backup, err := Archive(path, now)
	require.NoError(t, err)
	assert.Equal(t, path+".20240302-010203", backup)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	backup, err = Archive(path, now)
	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestArchive_SameSecondKeepsEarlierBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop_raw.jsonl")
	now := time.Date(2024, 3, 2, 1, 2, 3, 0, time.UTC)

	sessions := []string{"SESSION-ONE\n", "SESSION-TWO\n", "SESSION-THREE\n"}
	want := []string{path + ".20240302-010203", path + ".20240302-010203-1", path + ".20240302-010203-2"}
	for i, content := range sessions {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		backup, err := Archive(path, now.Add(time.Duration(i)*300*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, want[i], backup)
	}

	for i, backup := range want {
		data, err := os.ReadFile(backup)
		require.NoError(t, err)
		assert.Equal(t, sessions[i], string(data))
	}
}

// tornFile simulates a device that fails part way through a write
type tornFile struct {
	*os.File
	tearNext    bool
	truncateErr error
}

func (f *tornFile) Write(p []byte) (int, error) {
	if f.tearNext {
		f.tearNext = false
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("no space left on device")
	}
	return f.File.Write(p)
}

func (f *tornFile) Truncate(size int64) error {
	if f.truncateErr != nil {
		return f.truncateErr
	}
	return f.File.Truncate(size)
}

func TestWriter_ShortWriteIsCutOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName("loop"))
	w, err := Create(path, Record{SessionID: "abc", TaskName: "loop", Target: 3}, false)
	require.NoError(t, err)
	_, err = w.AppendTrial(Record{})
	require.NoError(t, err)

	w.file = &tornFile{File: w.file.(*os.File), tearNext: true}
	_, err = w.AppendTrial(Record{})
	require.Error(t, err)
	assert.Equal(t, 1, w.Runs(), "a torn record is not a run")

	for want := 2; want <= 3; want++ {
		run, err := w.AppendTrial(Record{})
		require.NoError(t, err)
		assert.Equal(t, want, run)
	}
	require.NoError(t, w.Close())

	summary, err := Scan(path)
	require.NoError(t, err)
	assert.False(t, summary.Partial)
	assert.Equal(t, 3, summary.Trials)
	assert.True(t, summary.Resumable())
}

func TestWriter_RefusesRecordsWhenCutOffFails(t *testing.T) {
	path := writeFile(t, header+trialLine(1))
	summary, err := Scan(path)
	require.NoError(t, err)
	w, err := Resume(summary, false)
	require.NoError(t, err)
	defer w.Close()

	w.file = &tornFile{File: w.file.(*os.File), tearNext: true, truncateErr: errors.New("read-only file system")}
	_, err = w.AppendTrial(Record{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriterFailed)

	_, err = w.AppendTrial(Record{})
	assert.ErrorIs(t, err, ErrWriterFailed)
	assert.ErrorIs(t, w.Finish(), ErrWriterFailed)

	// The torn bytes stay last in the file, so a later recovery discards them
	summary, err = Scan(path)
	require.NoError(t, err)
	assert.True(t, summary.Partial)
	assert.Equal(t, 1, summary.Trials)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		task string
		want string
	}{
		{"loop", "loop_raw.jsonl"},
		{"Loop Task 2", "Loop_Task_2_raw.jsonl"},
		{"../escape", ".._escape_raw.jsonl"},
		{"", "component_raw.jsonl"},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.task))
		})
	}
}
