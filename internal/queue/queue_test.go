package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	errs  []error
}

// handle fails with errs in order, then succeeds.
func (h *countingHandler) handle(_ context.Context, matchID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = make(map[uuid.UUID]int)
	}
	h.calls[matchID]++
	if n := h.calls[matchID]; n <= len(h.errs) {
		return h.errs[n-1]
	}
	return nil
}

func (h *countingHandler) count(matchID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[matchID]
}

func startQueue(t *testing.T, h *countingHandler, cfg Config) *Queue {
	t.Helper()

	q := New(h.handle, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return q
}

func TestQueueRetries(t *testing.T) {
	transient := fmt.Errorf("%w: database is locked", bracket.ErrTransientStore)
	stale := fmt.Errorf("%w: match changed", bracket.ErrStaleWrite)

	testCases := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
	}{
		{name: "succeeds first time", attempts: 3, wantCalls: 1},
		{name: "transient then success", errs: []error{transient, transient}, attempts: 5, wantCalls: 3},
		{name: "stale write is retried", errs: []error{stale}, attempts: 5, wantCalls: 2},
		{name: "gives up after max attempts", errs: []error{transient, transient, transient, transient}, attempts: 3, wantCalls: 3},
		{name: "unresolved draw is not retried", errs: []error{bracket.ErrUnresolvedDraw}, attempts: 5, wantCalls: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := &countingHandler{errs: tc.errs}
			q := startQueue(t, h, Config{Workers: 2, MaxAttempts: tc.attempts, RetryBackoff: time.Millisecond})
			matchID := uuid.New()

			q.Schedule(matchID)

			require.Eventually(t, func() bool { return h.count(matchID) == tc.wantCalls }, time.Second, 5*time.Millisecond)
			assert.Never(t, func() bool { return h.count(matchID) > tc.wantCalls }, 50*time.Millisecond, 5*time.Millisecond)
		})
	}
}

func TestQueueDelay(t *testing.T) {
	h := &countingHandler{}
	q := startQueue(t, h, Config{Delay: 100 * time.Millisecond, Workers: 1, MaxAttempts: 1})
	matchID := uuid.New()

	q.Schedule(matchID)
	assert.Zero(t, h.count(matchID))
	require.Eventually(t, func() bool { return h.count(matchID) == 1 }, time.Second, 10*time.Millisecond)
}

func TestQueueManyMatches(t *testing.T) {
	h := &countingHandler{}
	q := startQueue(t, h, Config{Workers: 4, MaxAttempts: 1})

	ids := make([]uuid.UUID, 20)
	for i := range ids {
		ids[i] = uuid.New()
		q.Schedule(ids[i])
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if h.count(id) != 1 {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}
