// Package worker implements the Lead Fetcher: render a URL, follow its contact
// page, extract lead fields, and always produce exactly one Lead Record.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/contact"
	"github.com/JakeFAU/lead-scraper/internal/extract"
	"github.com/JakeFAU/lead-scraper/internal/lead"
	"github.com/JakeFAU/lead-scraper/internal/metrics"
	"github.com/JakeFAU/lead-scraper/internal/progress"
)

// Limiter paces renders per host. *ratelimit.Limiter implements it.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls Fetcher behavior.
type Config struct {
	// SkipContact disables contact page discovery; only the landing page is extracted.
	SkipContact bool
}

// Fetcher turns one URL into one Lead Record.
type Fetcher struct {
	renderer  lead.Renderer
	extractor *extract.Extractor
	limiter   Limiter
	progress  progress.Emitter
	clock     lead.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Fetcher. limiter and emitter may be nil; a nil extractor
// uses the default category table and a nil clock uses UTC wall time.
func New(
	renderer lead.Renderer,
	extractor *extract.Extractor,
	limiter Limiter,
	emitter progress.Emitter,
	clock lead.Clock,
	cfg Config,
	logger *zap.Logger,
) *Fetcher {
	if extractor == nil {
		extractor = extract.New(nil)
	}
	if clock == nil {
		clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		renderer:  renderer,
		extractor: extractor,
		limiter:   limiter,
		progress:  emitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Fetch produces the Lead Record for url outside of any batch.
func (f *Fetcher) Fetch(ctx context.Context, url string) lead.Record {
	return f.FetchJob(ctx, uuid.Nil, lead.Job{URL: url})
}

// FetchJob produces the Lead Record for one Extraction Job. It never fails:
// render errors and renderer panics are reported as error records.
func (f *Fetcher) FetchJob(ctx context.Context, batchID uuid.UUID, job lead.Job) (rec lead.Record) {
	t := tracker{f: f, batchID: batchID, job: job}
	start := f.clock.Now()
	t.emit(progress.StageJobStart, job.URL, 0, 0, "")

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("lead fetch panicked",
				zap.String("url", job.URL),
				zap.Any("panic", r),
			)
			rec = lead.ErrorRecord(job.URL, fmt.Errorf("renderer panic: %v", r))
		}
		elapsed := f.clock.Now().Sub(start)
		metrics.ObserveRecord(job.URL, string(rec.Status))
		if rec.Failed() {
			t.emit(progress.StageJobError, job.URL, 0, elapsed, rec.Emails)
			return
		}
		t.emit(progress.StageJobDone, job.URL, 0, elapsed, "")
	}()

	return f.fetch(ctx, &t)
}

func (f *Fetcher) fetch(ctx context.Context, t *tracker) lead.Record {
	url := t.job.URL
	if f.renderer == nil {
		return lead.ErrorRecord(url, fmt.Errorf("no renderer configured"))
	}
	if err := f.wait(ctx, url); err != nil {
		return lead.ErrorRecord(url, err)
	}

	session, err := f.renderer.Open(ctx)
	if err != nil {
		f.logger.Error("open render session failed", zap.String("url", url), zap.Error(err))
		return lead.ErrorRecord(url, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			f.logger.Warn("close render session failed", zap.String("url", url), zap.Error(cerr))
		}
	}()

	renderStart := f.clock.Now()
	document, err := session.Render(ctx, url)
	if err != nil {
		f.logger.Warn("render failed", zap.String("url", url), zap.Error(err))
		return lead.ErrorRecord(url, err)
	}
	t.emit(progress.StageRenderDone, url, int64(len(document)), f.clock.Now().Sub(renderStart), "")

	combined := document
	if !f.cfg.SkipContact {
		combined = f.withContactPage(ctx, session, t, document)
	}

	fields := f.extractor.Extract(combined)
	t.emit(progress.StageExtractDone, url, 0, 0, fields.Category)
	f.logger.Debug("lead extracted",
		zap.String("url", url),
		zap.Int("emails", len(fields.Emails)),
		zap.Int("phones", len(fields.Phones)),
		zap.Int("socials", len(fields.Socials)),
		zap.String("category", fields.Category),
	)
	return lead.NewRecord(url, fields)
}

// withContactPage renders the located contact page and merges it into the
// landing document. Any failure keeps the landing document alone.
func (f *Fetcher) withContactPage(ctx context.Context, session lead.Session, t *tracker, document string) string {
	contactURL, ok := contact.Locate(document, t.job.URL)
	if !ok {
		return document
	}
	t.emit(progress.StageContactFound, contactURL, 0, 0, "")

	if err := f.wait(ctx, contactURL); err != nil {
		t.emit(progress.StageContactError, contactURL, 0, 0, err.Error())
		return document
	}
	start := f.clock.Now()
	contactDoc, err := session.Render(ctx, contactURL)
	if err != nil {
		f.logger.Warn("contact page render failed",
			zap.String("url", t.job.URL),
			zap.String("contact_url", contactURL),
			zap.Error(err),
		)
		t.emit(progress.StageContactError, contactURL, 0, 0, err.Error())
		return document
	}
	t.emit(progress.StageContactDone, contactURL, int64(len(contactDoc)), f.clock.Now().Sub(start), "")
	return contact.Merge(document, contactDoc)
}

func (f *Fetcher) wait(ctx context.Context, url string) error {
	if f.limiter == nil {
		return nil
	}
	if err := f.limiter.Wait(ctx, url); err != nil {
		return fmt.Errorf("wait for render budget: %w", err)
	}
	return nil
}

type tracker struct {
	f       *Fetcher
	batchID uuid.UUID
	job     lead.Job
}

func (t *tracker) emit(stage progress.Stage, url string, bytes int64, dur time.Duration, note string) {
	if t.f.progress == nil || t.batchID == uuid.Nil {
		return
	}
	t.f.progress.Emit(progress.Event{
		BatchID: progress.UUIDToBytes(t.batchID),
		TS:      t.f.clock.Now(),
		Stage:   stage,
		Index:   t.job.Index,
		URL:     url,
		Site:    metrics.SanitizeSite(url),
		Bytes:   bytes,
		Dur:     dur,
		Note:    note,
	})
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
