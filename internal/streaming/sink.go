package streaming

import (
	"context"
	"sync"
)

// Sink receives events in protocol order. An error means the consumer is gone
// and the producer should stop.
type Sink interface {
	Emit(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

func (f SinkFunc) Emit(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Buffer holds events back from the downstream sink until Commit, or until an event
// of one of the release types arrives. Held events can be dropped with Discard,
// which lets a caller abandon a partial run.
type Buffer struct {
	mu        sync.Mutex
	next      Sink
	held      []Event
	holding   bool
	releaseOn map[Type]struct{}
}

// NewBuffer returns a buffer; when hold is false it passes events straight through.
func NewBuffer(next Sink, hold bool, releaseOn ...Type) *Buffer {
	b := &Buffer{next: next, holding: hold, releaseOn: make(map[Type]struct{}, len(releaseOn))}
	for _, t := range releaseOn {
		b.releaseOn[t] = struct{}{}
	}
	return b
}

func (b *Buffer) Emit(ctx context.Context, evt Event) error {
	b.mu.Lock()
	if b.holding {
		if _, release := b.releaseOn[evt.Type]; !release {
			b.held = append(b.held, evt)
			b.mu.Unlock()
			return ctx.Err()
		}
		b.mu.Unlock()
		if err := b.Commit(ctx); err != nil {
			return err
		}
		return b.next.Emit(ctx, evt)
	}
	b.mu.Unlock()
	return b.next.Emit(ctx, evt)
}

// Commit releases held events in order and switches to pass-through.
func (b *Buffer) Commit(ctx context.Context) error {
	b.mu.Lock()
	held := b.held
	b.held = nil
	b.holding = false
	b.mu.Unlock()
	for _, evt := range held {
		if err := b.next.Emit(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops held events and reports how many were dropped.
func (b *Buffer) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.held)
	b.held = nil
	return n
}

// Committed reports whether anything can have reached the downstream sink.
func (b *Buffer) Committed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.holding
}

// Recorder keeps every event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of what was recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the discriminators in emission order.
func (r *Recorder) Types() []Type {
	events := r.Events()
	out := make([]Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
