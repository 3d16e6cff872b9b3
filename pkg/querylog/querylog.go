// pkg/querylog/querylog.go
package querylog

import (
	"slices"
	"sync"
	"time"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 200

// Entry is one logged statement.
type Entry struct {
	Adapter string
	SQL     string
	Binds   []any
	At      time.Time
}

// Log is a bounded, FIFO log of executed statements. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
	total   int
	now     func() time.Time
}

// New returns a log keeping at most limit entries. limit <= 0 uses DefaultLimit.
func New(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{limit: limit, now: time.Now}
}

// Add records a statement, evicting the oldest entry once the limit is reached.
func (l *Log) Add(adapter, sql string, binds []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Adapter: adapter, SQL: sql, Binds: slices.Clone(binds), At: l.now()})
	l.total++
	l.trim()
}

func (l *Log) trim() {
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = slices.Delete(l.entries, 0, over)
	}
}

// Queries returns the retained entries, oldest first.
func (l *Log) Queries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Count returns the number of statements recorded since creation or the
// last Clear, including evicted ones.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Limit returns the retention limit.
func (l *Log) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// SetLimit changes the retention limit, dropping the oldest entries if needed.
func (l *Log) SetLimit(n int) {
	if n <= 0 {
		n = DefaultLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = n
	l.trim()
}

// Clear drops every entry and resets Count.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.total = 0
}
