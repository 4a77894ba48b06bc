// Package app wires configuration into a runnable lead pipeline: renderer,
// rate limiter, progress hub, Lead Fetcher, dispatcher, and the optional
// export, persistence and notification backends.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/clock/system"
	"github.com/JakeFAU/lead-scraper/internal/config"
	"github.com/JakeFAU/lead-scraper/internal/dispatcher"
	"github.com/JakeFAU/lead-scraper/internal/export"
	"github.com/JakeFAU/lead-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/lead-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/lead-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/lead-scraper/internal/id/uuid"
	"github.com/JakeFAU/lead-scraper/internal/lead"
	"github.com/JakeFAU/lead-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/lead-scraper/internal/progress"
	"github.com/JakeFAU/lead-scraper/internal/progress/sinks"
	pubsubpub "github.com/JakeFAU/lead-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/lead-scraper/internal/storage/gcs"
	"github.com/JakeFAU/lead-scraper/internal/storage/local"
	"github.com/JakeFAU/lead-scraper/internal/storage/memory"
	"github.com/JakeFAU/lead-scraper/internal/storage/postgres"
	"github.com/JakeFAU/lead-scraper/internal/worker"
)

// Result is the outcome of one App.Run.
type Result struct {
	BatchID   string
	Records   []lead.Record
	ExportURI string
	Started   time.Time
	Finished  time.Time
}

// Failed counts error records.
func (r Result) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Failed() {
			n++
		}
	}
	return n
}

// App holds the long-lived services behind the CLI and the HTTP API.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	renderer   lead.Renderer
	hub        *progress.Hub
	dispatcher *dispatcher.Dispatcher
	format     export.Format
	blobs      lead.BlobStore
	history    *memory.RecordStore
	records    lead.RecordStore
	publisher  lead.Publisher
	registry   prometheus.Registerer
	closers    []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*App)

// WithRenderer replaces the configured renderer.
func WithRenderer(r lead.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithBlobStore replaces the configured export store.
func WithBlobStore(s lead.BlobStore) Option {
	return func(a *App) { a.blobs = s }
}

// WithRecordStore replaces the configured durable record store.
func WithRecordStore(s lead.RecordStore) Option {
	return func(a *App) { a.records = s }
}

// WithPublisher replaces the configured publisher.
func WithPublisher(p lead.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithRegistry registers progress collectors on reg instead of the default registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(a *App) { a.registry = reg }
}

// New builds an App from cfg. Options win over config-driven construction.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	format, err := export.ForFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		format:   format,
		history:  memory.NewRecordStore(),
		registry: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initRenderer(); err != nil {
		return nil, err
	}
	if err := a.initStorage(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	a.initPipeline()

	logger.Info("lead pipeline ready",
		zap.String("renderer", cfg.Renderer.Mode),
		zap.Int("workers", cfg.Pipeline.Workers),
		zap.String("export_format", format.Name),
		zap.Bool("export_store", a.blobs != nil),
		zap.Bool("record_store", a.records != nil),
		zap.Bool("publisher", a.publisher != nil),
	)
	return a, nil
}

func (a *App) initRenderer() error {
	if a.renderer != nil {
		return nil
	}
	rc := a.cfg.Renderer
	switch rc.Mode {
	case config.RendererStatic:
		a.renderer = collyfetcher.New(collyfetcher.Config{
			UserAgent:     rc.UserAgent,
			RespectRobots: rc.RespectRobots,
			Timeout:       a.cfg.NavTimeout(),
		})
	case config.RendererDisabled:
		a.renderer = headless.NewNoop()
	default:
		r, err := headless.NewChromedp(headless.Config{
			MaxParallel:       rc.MaxParallel,
			UserAgent:         rc.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
			Settle:            a.cfg.Settle(),
		})
		if err != nil {
			return fmt.Errorf("init headless renderer: %w", err)
		}
		a.renderer = r
		a.addCloser("headless renderer", func() error {
			r.Close()
			return nil
		})
	}
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	sc := a.cfg.Storage
	if a.blobs == nil {
		switch sc.Backend {
		case config.StorageLocal:
			store, err := local.New(local.Config{BaseDir: sc.LocalDir})
			if err != nil {
				return fmt.Errorf("init local storage: %w", err)
			}
			a.blobs = store
		case config.StorageMemory:
			a.blobs = memory.NewBlobStore()
		case config.StorageGCS:
			store, err := gcs.Open(ctx, gcs.Config{Bucket: sc.GCSBucket})
			if err != nil {
				return fmt.Errorf("init gcs storage: %w", err)
			}
			a.blobs = store
			a.addCloser("gcs client", store.Close)
		}
	}
	if a.records == nil && a.cfg.DB.DSN != "" {
		store, err := postgres.NewLeadStore(ctx, postgres.LeadStoreConfig{
			DSN:      a.cfg.DB.DSN,
			MaxConns: int32(a.cfg.DB.MaxConns), //nolint:gosec // validated small pool size
		})
		if err != nil {
			return fmt.Errorf("init lead store: %w", err)
		}
		a.addCloser("postgres pool", func() error {
			store.Close()
			return nil
		})
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.records = store
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.publisher != nil || a.cfg.PubSub.TopicName == "" {
		return nil
	}
	pub, closeFn, err := pubsubpub.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.publisher = pub
	a.addCloser("pubsub client", closeFn)
	return nil
}

func (a *App) initPipeline() {
	var hubSinks []progress.Sink
	if a.cfg.Progress.LogEvents {
		hubSinks = append(hubSinks, sinks.NewLogSink(a.logger.Named("progress")))
	}
	if promSink, err := sinks.NewPrometheusSink(a.registry); err != nil {
		a.logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.ProgressWait(),
		Logger:         a.logger.Named("hub"),
	}, hubSinks...)

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Renderer.DomainQPS,
		DefaultBurst: a.cfg.Renderer.DomainBurst,
	})
	fetcher := worker.New(
		a.renderer,
		extract.New(a.cfg.Pipeline.Categories),
		limiter,
		a.hub,
		system.New(),
		worker.Config{SkipContact: a.cfg.Pipeline.SkipContact},
		a.logger.Named("fetcher"),
	)
	a.dispatcher = dispatcher.New(fetcher,
		dispatcher.Config{Workers: a.cfg.Pipeline.Workers},
		dispatcher.WithIDGenerator(uuid.New()),
		dispatcher.WithProgress(a.hub),
		dispatcher.WithLogger(a.logger.Named("dispatcher")),
	)
}

// Format is the configured default export format.
func (a *App) Format() export.Format {
	return a.format
}

// Run scrapes urls and returns one record per URL in input order. The export
// file, record persistence and notifications are best effort: their failures
// are returned joined alongside a complete Result.
func (a *App) Run(ctx context.Context, urls []string) (Result, error) {
	batch := a.dispatcher.RunBatch(ctx, urls)
	res := Result{
		BatchID:  batch.ID.String(),
		Records:  batch.Records,
		Started:  batch.Started,
		Finished: batch.Finished,
	}
	logger := a.logger.With(zap.String("batch_id", res.BatchID))

	// Persist even when the caller's context is already done.
	persistCtx := context.WithoutCancel(ctx)
	var errs []error
	if err := a.history.SaveRecords(persistCtx, res.BatchID, res.Records); err != nil {
		errs = append(errs, err)
	}
	if a.records != nil {
		if err := a.records.SaveRecords(persistCtx, res.BatchID, res.Records); err != nil {
			logger.Error("save records failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("save records: %w", err))
		}
	}
	if a.blobs != nil {
		uri, err := a.storeExport(persistCtx, res)
		if err != nil {
			logger.Error("store export failed", zap.Error(err))
			errs = append(errs, err)
		}
		res.ExportURI = uri
	}
	if a.publisher != nil {
		if err := a.notify(persistCtx, res); err != nil {
			logger.Error("publish leads failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (a *App) storeExport(ctx context.Context, res Result) (string, error) {
	var buf bytes.Buffer
	if err := a.format.Write(&buf, res.Records); err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	path := export.ObjectPath(a.cfg.Storage.Prefix, res.BatchID, a.format)
	uri, err := a.blobs.PutObject(ctx, path, a.format.ContentType, &buf)
	if err != nil {
		return "", fmt.Errorf("put export: %w", err)
	}
	return uri, nil
}

// Notification is the message published for each successful Lead Record.
type Notification struct {
	BatchID string      `json:"batch_id"`
	Index   int         `json:"index"`
	Lead    lead.Record `json:"lead"`
}

// Attributes exposes routing metadata to the Pub/Sub publisher.
func (n Notification) Attributes() map[string]string {
	return map[string]string{
		"batch_id":      n.BatchID,
		"business_type": n.Lead.BusinessType,
	}
}

func (a *App) notify(ctx context.Context, res Result) error {
	var errs []error
	for i, rec := range res.Records {
		if rec.Failed() {
			continue
		}
		msg := Notification{BatchID: res.BatchID, Index: i, Lead: rec}
		if _, err := a.publisher.Publish(ctx, a.cfg.PubSub.TopicName, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish lead %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the records of a batch run by this process.
func (a *App) Lookup(ctx context.Context, batchID string) ([]lead.Record, error) {
	records, err := a.history.Records(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("lookup batch %s: %w", batchID, err)
	}
	return records, nil
}

// Close flushes progress and releases every backend. It is safe to call once
// the App is no longer running batches.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
