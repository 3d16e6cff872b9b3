// pkg/querylog/querylog_test.go
package querylog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AddAndLast(t *testing.T) {
	l := New(0)
	assert.Equal(t, DefaultLimit, l.Limit())

	_, ok := l.Last()
	assert.False(t, ok)

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	binds := []any{1, "x"}
	l.Add("sqlite", "SELECT 1", binds)
	binds[0] = 99

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, Entry{Adapter: "sqlite", SQL: "SELECT 1", Binds: []any{1, "x"}, At: fixed}, last)
	assert.Equal(t, 1, l.Count())
}

func TestLog_EvictsOldest(t *testing.T) {
	l := New(3)
	for i := 0; i < 5; i++ {
		l.Add("mysql", fmt.Sprintf("SELECT %d", i), nil)
	}
	got := l.Queries()
	require.Len(t, got, 3)
	assert.Equal(t, "SELECT 2", got[0].SQL)
	assert.Equal(t, "SELECT 4", got[2].SQL)
	assert.Equal(t, 5, l.Count(), "count includes evicted entries")
	assert.Equal(t, 3, l.Len())
}

func TestLog_SetLimit(t *testing.T) {
	l := New(10)
	for i := 0; i < 6; i++ {
		l.Add("pg", fmt.Sprintf("Q%d", i), nil)
	}
	l.SetLimit(2)
	got := l.Queries()
	require.Len(t, got, 2)
	assert.Equal(t, "Q4", got[0].SQL)

	l.SetLimit(-1)
	assert.Equal(t, DefaultLimit, l.Limit())
}

func TestLog_Clear(t *testing.T) {
	l := New(5)
	l.Add("pg", "Q", nil)
	l.Clear()
	assert.Zero(t, l.Count())
	assert.Empty(t, l.Queries())
}

func TestLog_Concurrent(t *testing.T) {
	l := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Add("sqlite", "SELECT 1", nil)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, l.Count())
	assert.Equal(t, 50, l.Len())
}
