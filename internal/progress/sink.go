package progress

import "context"

// Sink receives flushed batches of lead progress events, in emission order
// per job. The Hub calls Consume from a single goroutine with a per-call
// timeout, then Close once on shutdown.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// SinkFunc adapts a function to a Sink with nothing to release on Close.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}

// Emitter is what the Lead Fetcher and the dispatcher report stages to. *Hub
// implements it; tests record events directly.
type Emitter interface {
	Emit(evt Event)
}
