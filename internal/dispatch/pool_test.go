package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ig-autoreply/internal/types"
)

type blockingHandler struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []string
	panicOn string
}

func (h *blockingHandler) Dispatch(ctx context.Context, ev types.Classified) Outcome {
	if ev.SenderID == h.panicOn {
		panic("boom")
	}
	select {
	case <-h.release:
	case <-ctx.Done():
		return Failed
	}
	h.mu.Lock()
	h.seen = append(h.seen, ev.SenderID)
	h.mu.Unlock()
	return Replied
}

func (h *blockingHandler) Seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func TestPoolScheduleDoesNotBlock(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	p := NewPool(h, time.Minute, nil)

	done := make(chan struct{})
	go func() {
		p.Schedule(message("U1", "a"))
		p.Schedule(message("U2", "b"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Schedule blocked on a slow handler")
	}
	assert.Empty(t, h.Seen())

	close(h.release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"U1", "U2"}, h.Seen())
}

func TestPoolShutdownIsBounded(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	p := NewPool(h, time.Minute, nil)
	p.Schedule(message("U1", "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	close(h.release)
}

func TestPoolDropsAfterShutdown(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	close(h.release)
	p := NewPool(h, time.Minute, nil)
	require.NoError(t, p.Shutdown(context.Background()))

	p.Schedule(message("U1", "late"))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Empty(t, h.Seen())
}

func TestPoolRecoversPanics(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{}), panicOn: "BAD"}
	close(h.release)
	p := NewPool(h, time.Minute, nil)

	p.Schedule(message("BAD", "x"))
	p.Schedule(message("U1", "ok"))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, []string{"U1"}, h.Seen())
}

func TestPoolAppliesTimeout(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	p := NewPool(h, 10*time.Millisecond, nil)
	p.Schedule(message("U1", "a"))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Empty(t, h.Seen(), "handler saw ctx deadline instead of release")
}
