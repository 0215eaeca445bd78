package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle struct {
	id     string
	userID int64
}

func (s *stubHandle) ID() string        { return s.id }
func (s *stubHandle) UserID() int64     { return s.userID }
func (s *stubHandle) Send([]byte) error { return nil }
func (s *stubHandle) Close(int, string) {}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry() (*Registry, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry()
	r.now = c.now
	return r, c
}

func TestRegisterReplacesPreviousHandle(t *testing.T) {
	r, _ := newTestRegistry()
	first := &stubHandle{id: "a", userID: 1}
	second := &stubHandle{id: "b", userID: 1}

	assert.Nil(t, r.Register(1, first))
	prev := r.Register(1, second)
	assert.Same(t, first, prev)

	h, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, h)

	assert.False(t, r.Unregister(1, first), "stale handle must not remove its successor")
	assert.True(t, r.IsOnline(1))
	assert.True(t, r.Unregister(1, second))
	assert.False(t, r.IsOnline(1))
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	r, c := newTestRegistry()
	threshold := 90 * time.Second

	r.Register(1, &stubHandle{id: "a", userID: 1})
	r.Register(2, &stubHandle{id: "b", userID: 2})

	c.advance(60 * time.Second)
	assert.True(t, r.Touch(2))
	assert.False(t, r.Touch(3))

	c.advance(60 * time.Second)
	evicted := r.Sweep(c.now(), threshold)

	require.Len(t, evicted, 1)
	assert.Equal(t, int64(1), evicted[0].UserID)
	assert.False(t, r.IsOnline(1))
	assert.True(t, r.IsOnline(2))

	assert.Empty(t, r.Sweep(c.now(), threshold))
}

func TestSnapshotIsOrderedCopy(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register(3, &stubHandle{id: "c", userID: 3})
	r.Register(1, &stubHandle{id: "a", userID: 1})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(1), snap[0].UserID)
	assert.Equal(t, int64(3), snap[1].UserID)
	assert.Equal(t, 2, r.Count())
}

func TestConcurrentRegisterAndSweep(t *testing.T) {
	r, c := newTestRegistry()
	const users = 50

	var wg sync.WaitGroup
	handles := make([]*stubHandle, users)
	for i := 0; i < users; i++ {
		handles[i] = &stubHandle{id: fmt.Sprintf("h%d", i), userID: int64(i)}
	}

	for i := 0; i < users; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(int64(i), handles[i])
			r.Touch(int64(i))
		}(i)
		go func() {
			defer wg.Done()
			r.Sweep(c.now(), time.Minute)
		}()
	}
	wg.Wait()

	for i := 0; i < users; i++ {
		h, ok := r.Lookup(int64(i))
		require.True(t, ok)
		assert.Same(t, handles[i], h)
	}
}
