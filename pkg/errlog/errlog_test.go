package errlog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendOnly(t *testing.T) {
	var l Log

	l.Append("first")
	l.Append("second")
	before := l.Messages()

	l.Append("third")
	after := l.Messages()

	require.Len(t, after, 3)
	assert.Equal(t, before, after[:2], "prior entries must not change")
	assert.Equal(t, "third", after[len(after)-1])
}

func TestLog_SnapshotIsolation(t *testing.T) {
	l := New()
	l.Append("a")

	snap := l.Messages()
	snap[0] = "mutated"

	assert.Equal(t, []string{"a"}, l.Messages())
}

func TestEntry_String(t *testing.T) {
	l := New()
	l.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }
	l.Append("boom")

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "[2024-05-01 10:30:00] boom", entries[0].String())
}

func TestLog_ConcurrentAppend(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Append(fmt.Sprintf("msg-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, l.Len())
}
