package events

import (
	"context"
	"sync"
)

// Recorder is a synchronous Bus for tests. It records every publish and runs
// subscribed handlers inline, collecting their errors.
type Recorder struct {
	mu       sync.Mutex
	events   []Event
	handlers map[Name][]Handler
	errs     []error
}

func NewRecorder() *Recorder {
	return &Recorder{handlers: make(map[Name][]Handler)}
}

func (r *Recorder) Subscribe(name Name, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], handler)
}

func (r *Recorder) Publish(ctx context.Context, evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	handlers := append([]Handler(nil), r.handlers[evt.Name]...)
	r.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		}
	}
}

func (r *Recorder) Close(context.Context) error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the recorded events with the given name, in publish order.
func (r *Recorder) Named(name Name) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, evt := range r.events {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

func (r *Recorder) HandlerErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
