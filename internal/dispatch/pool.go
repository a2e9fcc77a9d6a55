package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/metrics"
	"ig-autoreply/internal/types"
)

// Pool runs each scheduled event on its own goroutine. Work is detached from
// the request context; only the per-event timeout bounds it. Events for the
// same sender may finish in any order.
type Pool struct {
	h       Handler
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(h Handler, timeout time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.Noop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pool{h: h, timeout: timeout, logger: logger.With(logging.Component("dispatch-pool"))}
}

func (p *Pool) Schedule(ev types.Classified) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("pool is shutting down; dropping event", logging.Sender(ev.SenderID))
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	metrics.DispatchInFlight.Inc()
	go func() {
		defer p.wg.Done()
		defer metrics.DispatchInFlight.Dec()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("dispatch panicked", slog.Any("panic", r), logging.Sender(ev.SenderID))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.h.Dispatch(ctx, ev)
	}()
}

// Shutdown stops accepting events and waits for in-flight ones until ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("shutdown grace period elapsed with dispatches in flight")
		return ctx.Err()
	}
}
