package rawdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrWriterFailed is returned once a torn record could not be cut off
var ErrWriterFailed = errors.New("raw data writer failed")

// dataFile is the part of *os.File the writer uses
type dataFile interface {
	io.Writer
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Writer appends records to a raw data file. After a failed write the file is
// truncated back to the end of the last complete record.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     dataFile
	syncEach bool
	runs     int
	offset   int64 // end of the last complete record
	closed   bool
	failed   error
}

// Create starts a new raw data file at path, replacing any existing file,
// and writes the header record.
func Create(path string, header Record, syncEach bool) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create raw data file %s: %w", path, err)
	}

	w := &Writer{path: path, file: f, syncEach: syncEach}
	header.Type = RecordHeader
	if header.Time.IsZero() {
		header.Time = time.Now()
	}
	if err := w.write(&header); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Resume reopens an interrupted raw data file for appending. Bytes past the
// last complete record are cut off so the next record starts on a clean line.
func Resume(summary *Summary, syncEach bool) (*Writer, error) {
	if summary == nil || !summary.Exists {
		return nil, errors.New("no raw data file to resume")
	}
	if summary.Header == nil {
		return nil, errors.New("raw data file has no header")
	}
	if summary.Terminated {
		return nil, errors.New("raw data file is already terminated")
	}

	f, err := os.OpenFile(summary.Path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw data file %s: %w", summary.Path, err)
	}

	if summary.Size != summary.ValidSize {
		if err := f.Truncate(summary.ValidSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to discard partial record: %w", err)
		}
		if syncEach {
			if err := f.Sync(); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to sync raw data file: %w", err)
			}
		}
	}

	return &Writer{
		path:     summary.Path,
		file:     f,
		syncEach: syncEach,
		runs:     summary.Trials,
		offset:   summary.ValidSize,
	}, nil
}

// AppendTrial writes the next trial record and returns its run number
func (w *Writer) AppendTrial(rec Record) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec.Type = RecordTrial
	rec.Run = w.runs + 1
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if err := w.writeLocked(&rec); err != nil {
		return 0, err
	}
	w.runs = rec.Run
	return rec.Run, nil
}

// Finish writes the terminal marker
func (w *Writer) Finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(&Record{Type: RecordEnd, Time: time.Now()})
}

// Runs returns the number of trial records in the file
func (w *Writer) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Path returns the file path
func (w *Writer) Path() string {
	return w.path
}

// Close closes the underlying file. Calling Close more than once is safe.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

func (w *Writer) write(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(rec)
}

func (w *Writer) writeLocked(rec *Record) error {
	if w.closed {
		return errors.New("raw data writer is closed")
	}
	if w.failed != nil {
		return w.failed
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", rec.Type, err)
	}
	data = append(data, '\n')

	// One write per record keeps a crash from leaving more than one partial line
	n, err := w.file.Write(data)
	if err != nil {
		return w.rollbackLocked(rec.Type, n, err)
	}
	if w.syncEach {
		if err := w.file.Sync(); err != nil {
			return w.rollbackLocked(rec.Type, n, fmt.Errorf("sync: %w", err))
		}
	}
	w.offset += int64(n)
	return nil
}

// rollbackLocked cuts a short write off so the next record starts on a clean
// line. If that fails too the writer refuses further records.
func (w *Writer) rollbackLocked(recType RecordType, written int, writeErr error) error {
	err := fmt.Errorf("failed to write %s record: %w", recType, writeErr)
	if written == 0 {
		return err
	}
	if terr := w.file.Truncate(w.offset); terr != nil {
		w.failed = fmt.Errorf("%w: torn %s record left at offset %d: %w", ErrWriterFailed, recType, w.offset, terr)
		return errors.Join(err, w.failed)
	}
	return err
}

// maxArchives bounds the numbered suffixes tried within one second
const maxArchives = 1000

// Archive moves an existing raw data file aside with a timestamp suffix,
// adding -1, -2, ... when a backup with that timestamp already exists.
// It returns the new path, or "" when there was nothing to move.
func Archive(path string, now time.Time) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}

	base := path + "." + now.Format("20060102-150405")
	for i := 0; i < maxArchives; i++ {
		backupPath := base
		if i > 0 {
			backupPath = fmt.Sprintf("%s-%d", base, i)
		}
		if _, err := os.Lstat(backupPath); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to check archive path: %w", err)
		}
		if err := os.Rename(path, backupPath); err != nil {
			return "", fmt.Errorf("failed to archive raw data file: %w", err)
		}
		return backupPath, nil
	}
	return "", fmt.Errorf("failed to archive raw data file: %d backups already exist for %s", maxArchives, base)
}
