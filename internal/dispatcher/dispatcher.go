// Package dispatcher fans Extraction Jobs out to a fixed pool of Lead Fetcher
// workers and reassembles their records in input order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/lead"
	"github.com/JakeFAU/lead-scraper/internal/metrics"
	"github.com/JakeFAU/lead-scraper/internal/progress"
	"github.com/JakeFAU/lead-scraper/internal/queue/memory"
)

// DefaultWorkers is the pool size used when Config.Workers is not positive.
const DefaultWorkers = 3

// JobFetcher produces one Lead Record per job. *worker.Fetcher implements it.
type JobFetcher interface {
	FetchJob(ctx context.Context, batchID uuid.UUID, job lead.Job) lead.Record
}

// BatchIDGenerator mints batch identifiers. *uuid.Generator implements it.
type BatchIDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Config controls the worker pool.
type Config struct {
	Workers int
}

// Batch is the outcome of one Run.
type Batch struct {
	ID       uuid.UUID
	Records  []lead.Record
	Started  time.Time
	Finished time.Time
}

// Failed counts error records in the batch.
func (b Batch) Failed() int {
	n := 0
	for _, rec := range b.Records {
		if rec.Failed() {
			n++
		}
	}
	return n
}

// Dispatcher runs batches of URLs through a bounded worker pool.
type Dispatcher struct {
	fetcher  JobFetcher
	cfg      Config
	ids      BatchIDGenerator
	progress progress.Emitter
	logger   *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithIDGenerator overrides how batch IDs are minted.
func WithIDGenerator(ids BatchIDGenerator) Option {
	return func(d *Dispatcher) {
		if ids != nil {
			d.ids = ids
		}
	}
}

// WithProgress attaches a progress emitter for batch events.
func WithProgress(emitter progress.Emitter) Option {
	return func(d *Dispatcher) {
		d.progress = emitter
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher.
func New(fetcher JobFetcher, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	d := &Dispatcher{
		fetcher: fetcher,
		cfg:     cfg,
		ids:     v7Generator{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Workers reports the configured pool size.
func (d *Dispatcher) Workers() int {
	return d.cfg.Workers
}

// Run processes urls and returns one record per input, in input order.
func (d *Dispatcher) Run(ctx context.Context, urls []string) []lead.Record {
	return d.RunBatch(ctx, urls).Records
}

// RunBatch processes urls under a fresh batch ID. Each job's record is stored
// in the slot reserved for its input position, so completion order never
// affects output order. Jobs not started before ctx ends get error records.
func (d *Dispatcher) RunBatch(ctx context.Context, urls []string) Batch {
	batch := Batch{
		ID:      d.newBatchID(),
		Records: make([]lead.Record, len(urls)),
		Started: time.Now().UTC(),
	}
	logger := d.logger.With(zap.Stringer("batch_id", batch.ID), zap.Int("urls", len(urls)))
	logger.Info("batch started", zap.Int("workers", d.cfg.Workers))
	metrics.ObserveBatch(len(urls))
	d.emitBatch(batch.ID, progress.StageBatchStart, len(urls), 0)

	queue := memory.NewQueue(len(urls))
	for i, url := range urls {
		// Capacity matches len(urls); enqueue cannot block.
		if err := queue.Enqueue(context.Background(), lead.Job{Index: i, URL: url}); err != nil {
			logger.Error("enqueue job failed", zap.Int("index", i), zap.Error(err))
		}
	}
	queue.Close()

	done := make([]bool, len(urls))
	workers := d.cfg.Workers
	if workers > len(urls) {
		workers = len(urls)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, batch.ID, queue, batch.Records, done)
		}()
	}
	wg.Wait()

	for i, ok := range done {
		if ok {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = errors.New("job was not processed")
		}
		batch.Records[i] = lead.ErrorRecord(urls[i], fmt.Errorf("not started: %w", err))
	}

	batch.Finished = time.Now().UTC()
	d.emitBatch(batch.ID, progress.StageBatchDone, len(urls), batch.Finished.Sub(batch.Started))
	logger.Info("batch finished",
		zap.Int("failed", batch.Failed()),
		zap.Duration("elapsed", batch.Finished.Sub(batch.Started)),
	)
	return batch
}

func (d *Dispatcher) work(
	ctx context.Context,
	batchID uuid.UUID,
	queue *memory.Queue,
	results []lead.Record,
	done []bool,
) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		job, err := queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				d.logger.Debug("worker stopping", zap.Error(err))
			}
			return
		}
		results[job.Index] = d.fetcher.FetchJob(ctx, batchID, job)
		done[job.Index] = true
	}
}

func (d *Dispatcher) newBatchID() uuid.UUID {
	id, err := d.ids.NewRawID()
	if err != nil {
		d.logger.Warn("batch id generation failed; using random id", zap.Error(err))
		return uuid.New()
	}
	return id
}

func (d *Dispatcher) emitBatch(id uuid.UUID, stage progress.Stage, jobs int, dur time.Duration) {
	if d.progress == nil {
		return
	}
	d.progress.Emit(progress.Event{
		BatchID: progress.UUIDToBytes(id),
		TS:      time.Now().UTC(),
		Stage:   stage,
		Index:   jobs,
		Dur:     dur,
	})
}

type v7Generator struct{}

func (v7Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}
