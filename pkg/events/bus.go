package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// AsyncBus runs every handler on its own goroutine with a detached context.
type AsyncBus struct {
	logg    *logger.Logger
	metrics *metrics.BusMetrics

	mu       sync.RWMutex
	handlers map[Name][]Handler
	closed   bool

	wg        sync.WaitGroup
	drainMu   sync.Mutex
	drainErrs error
	draining  bool
}

func NewBus(logg *logger.Logger, m *metrics.BusMetrics) *AsyncBus {
	if logg == nil {
		logg = logger.Nop()
	}
	return &AsyncBus{
		logg:     logg,
		metrics:  m,
		handlers: make(map[Name][]Handler),
	}
}

func (b *AsyncBus) Subscribe(name Name, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Publish never blocks on handlers. Events published after Close are dropped.
func (b *AsyncBus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logg.Warn(ctx, fmt.Sprintf("event bus closed, dropping %s", evt.Name))
		return
	}
	handlers := append([]Handler(nil), b.handlers[evt.Name]...)
	b.wg.Add(len(handlers))
	b.mu.RUnlock()

	b.metrics.IncPublished(string(evt.Name))
	detached := b.logg.WithField(b.logg.Detach(ctx), "event", string(evt.Name))
	for _, h := range handlers {
		go b.run(detached, h, evt)
	}
}

func (b *AsyncBus) run(ctx context.Context, h Handler, evt Event) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.metrics.IncHandled(string(evt.Name), metrics.OutcomePanic)
			err := fmt.Errorf("event handler panic: %v", r)
			b.logg.Error(ctx, "event handler panicked", err)
			b.recordDrainError(err)
		}
	}()

	if err := h(ctx, evt); err != nil {
		b.metrics.IncHandled(string(evt.Name), metrics.OutcomeError)
		b.logg.Error(ctx, "event handler failed", err)
		b.recordDrainError(fmt.Errorf("%s: %w", evt.Name, err))
		return
	}
	b.metrics.IncHandled(string(evt.Name), metrics.OutcomeOK)
}

// Close stops accepting events and waits for in-flight handlers until ctx is done.
// Errors from handlers that finished during the drain are returned combined.
func (b *AsyncBus) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.drainMu.Lock()
	b.draining = true
	b.drainMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("draining event handlers: %w", ctx.Err())
	}

	b.drainMu.Lock()
	defer b.drainMu.Unlock()
	return multierr.Append(waitErr, b.drainErrs)
}

func (b *AsyncBus) recordDrainError(err error) {
	b.drainMu.Lock()
	defer b.drainMu.Unlock()
	if b.draining {
		b.drainErrs = multierr.Append(b.drainErrs, err)
	}
}
