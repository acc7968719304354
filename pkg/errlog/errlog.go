// Package errlog holds the append-only diagnostic log a component exposes to its host.
package errlog

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one registered error
type Entry struct {
	Time    time.Time
	Message string
}

// String renders the entry the way the host displays it
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("2006-01-02 15:04:05"), e.Message)
}

// Log is an ordered, append-only sequence of error messages.
// The zero value is ready to use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// New creates an empty log
func New() *Log {
	return &Log{}
}

// Append adds a message. It never fails.
func (l *Log) Append(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now
	if l.now != nil {
		now = l.now
	}
	l.entries = append(l.entries, Entry{Time: now(), Message: message})
}

// Messages returns a snapshot of the raw messages in call order
func (l *Log) Messages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Message
	}
	return out
}

// Entries returns a snapshot of all entries in call order
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
