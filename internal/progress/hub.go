package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: events held between Emit and the batching goroutine (default 4096).
//   - MaxBatchEvents: flush once this many events are pending (default 1000).
//   - MaxBatchWait: longest an event waits for a flush, measured from the first
//     pending event (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
)

// Stats counts what the Hub did with the events it was given.
type Stats struct {
	// Delivered events reached the sinks.
	Delivered int64
	// Dropped intermediate events were shed because the buffer was full.
	Dropped int64
	// Overflowed lifecycle events bypassed a full buffer through the overflow list.
	Overflowed int64
}

// Hub batches lead progress events from every worker and fans them out to
// sinks. Emit never blocks. When the buffer is full, intermediate stages are
// shed and counted against their batch, while lifecycle stages (see
// Stage.Lifecycle) are parked on an overflow list so sinks always see every
// job start and finish. A batch's events are flushed as soon as its
// BATCH_DONE arrives. A nil *Hub discards events.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	mu       sync.Mutex
	closed   bool
	overflow []Event
	shed     map[[16]byte]map[Stage]int
	stats    Stats

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine and returns a Hub ready for events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
		shed:   make(map[[16]byte]map[Stage]int),
	}
	go h.run()
	return h
}

// Emit enqueues an event for batching. Invalid events and events emitted
// after Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid lead progress event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	// Once anything is parked, later events queue behind it so a job's
	// stages reach the sinks in emission order.
	if len(h.overflow) == 0 {
		select {
		case h.events <- evt:
			return
		default:
		}
	}
	if evt.Stage.Lifecycle() {
		h.overflow = append(h.overflow, evt)
		h.stats.Overflowed++
		select {
		case h.wake <- struct{}{}:
		default:
		}
		return
	}
	h.stats.Dropped++
	stages := h.shed[evt.BatchID]
	if stages == nil {
		stages = make(map[Stage]int)
		h.shed[evt.BatchID] = stages
	}
	stages[evt.Stage]++
}

// Stats returns a snapshot of the Hub counters.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Close stops accepting events, delivers everything already accepted, closes
// the sinks and waits for the batching goroutine or ctx.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.closeCtx = ctx
		h.mu.Unlock()
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// pending is the batch being assembled by run along with its flush deadline.
type pending struct {
	events []Event
	timer  *time.Timer
	armed  bool
}

func (h *Hub) run() {
	defer close(h.doneCh)
	p := &pending{
		events: make([]Event, 0, h.cfg.MaxBatchEvents),
		timer:  time.NewTimer(time.Hour),
	}
	p.disarm()
	for {
		select {
		case evt := <-h.events:
			h.add(p, evt)
		case <-h.wake:
			h.drainQueued(p)
		case <-p.timer.C:
			p.armed = false
			h.flush(p)
		case <-h.stopCh:
			h.drainQueued(p)
			h.flush(p)
			h.closeSinks()
			return
		}
	}
}

// drainQueued moves buffered events, then parked overflow, into the batch.
// Emit parks nothing while the channel has room and the overflow list is
// empty, so channel events always precede parked ones.
func (h *Hub) drainQueued(p *pending) {
	for drained := false; !drained; {
		select {
		case evt := <-h.events:
			h.add(p, evt)
		default:
			drained = true
		}
	}
	h.mu.Lock()
	parked := h.overflow
	h.overflow = nil
	h.mu.Unlock()
	for _, evt := range parked {
		h.add(p, evt)
	}
}

func (h *Hub) add(p *pending, evt Event) {
	if evt.Stage == StageBatchDone {
		evt.Dropped = h.takeShed(evt)
	}
	p.events = append(p.events, evt)
	switch {
	case len(p.events) >= h.cfg.MaxBatchEvents, evt.Stage == StageBatchDone:
		h.flush(p)
	case !p.armed:
		p.timer.Reset(h.cfg.MaxBatchWait)
		p.armed = true
	}
}

// takeShed clears and reports the events shed for the finished batch.
func (h *Hub) takeShed(done Event) int {
	h.mu.Lock()
	stages := h.shed[done.BatchID]
	delete(h.shed, done.BatchID)
	h.mu.Unlock()
	if len(stages) == 0 {
		return 0
	}
	total := 0
	names := make([]string, 0, len(stages))
	for stage, n := range stages {
		total += n
		names = append(names, string(stage))
	}
	sort.Strings(names)
	h.logger.Warn("lead progress events dropped due to backpressure",
		zap.Stringer("batch_id", done.BatchUUID()),
		zap.Int("dropped", total),
		zap.Strings("stages", names),
	)
	return total
}

func (h *Hub) flush(p *pending) {
	p.disarm()
	if len(p.events) == 0 {
		return
	}
	batch := append([]Event(nil), p.events...)
	p.events = p.events[:0]
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
	h.mu.Lock()
	h.stats.Delivered += int64(len(batch))
	h.mu.Unlock()
}

func (p *pending) disarm() {
	p.timer.Stop()
	p.armed = false
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
