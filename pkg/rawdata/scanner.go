package rawdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tnez/RRF-Loop/pkg/models"
)

// Summary describes what a scan found in a raw data file
type Summary struct {
	Path       string
	Exists     bool
	Header     *Record
	Trials     int   // complete trial records
	Terminated bool  // end record present
	Partial    bool  // trailing bytes discarded as a partial record
	ValidSize  int64 // byte offset just past the last complete record
	Size       int64 // file size on disk
}

// Resumable reports whether the file holds an interrupted session
func (s *Summary) Resumable() bool {
	return s.Exists && s.Trials > 0 && !s.Terminated
}

// Scan reads the raw data file at path. A missing file is not an error.
// Corruption anywhere other than the final line returns an error wrapping
// models.ErrCorruptRawData, alongside the summary of what was read so far.
func Scan(path string) (*Summary, error) {
	summary := &Summary{Path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("failed to read raw data file: %w", err)
	}
	summary.Exists = true
	summary.Size = int64(len(data))

	var offset int64
	rest := data
	lineNo := 0
	for len(rest) > 0 {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			// No newline: the write of this line never finished
			summary.Partial = true
			break
		}
		line := rest[:idx]
		rest = rest[idx+1:]
		lineNo++

		if len(bytes.TrimSpace(line)) == 0 {
			offset += int64(idx + 1)
			summary.ValidSize = offset
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			if len(bytes.TrimSpace(rest)) == 0 {
				summary.Partial = true
				break
			}
			return summary, fmt.Errorf("%w: line %d: %v", models.ErrCorruptRawData, lineNo, err)
		}

		if err := summary.accept(&rec, lineNo); err != nil {
			return summary, err
		}

		offset += int64(idx + 1)
		summary.ValidSize = offset
	}

	return summary, nil
}

func (s *Summary) accept(rec *Record, lineNo int) error {
	if s.Terminated {
		return fmt.Errorf("%w: line %d: %s record after end record", models.ErrCorruptRawData, lineNo, rec.Type)
	}

	switch rec.Type {
	case RecordHeader:
		if s.Header != nil {
			return fmt.Errorf("%w: line %d: duplicate header", models.ErrCorruptRawData, lineNo)
		}
		s.Header = rec
	case RecordTrial:
		if s.Header == nil {
			return fmt.Errorf("%w: line %d: trial record before header", models.ErrCorruptRawData, lineNo)
		}
		if rec.Run != s.Trials+1 {
			return fmt.Errorf("%w: line %d: expected run %d, found %d", models.ErrCorruptRawData, lineNo, s.Trials+1, rec.Run)
		}
		s.Trials++
	case RecordEnd:
		if s.Header == nil {
			return fmt.Errorf("%w: line %d: end record before header", models.ErrCorruptRawData, lineNo)
		}
		s.Terminated = true
	default:
		return fmt.Errorf("%w: line %d: unknown record type %q", models.ErrCorruptRawData, lineNo, rec.Type)
	}
	return nil
}
