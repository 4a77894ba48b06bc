// Package collyfetcher implements a static, non-JavaScript lead.Renderer using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/lead-scraper/internal/lead"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Renderer implements lead.Renderer with plain HTTP GETs through Colly. Pages
// that build their content with JavaScript come back as served.
type Renderer struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Renderer.
func New(cfg Config) *Renderer {
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Renderer{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Open returns a session with its own collector clone. Static sessions hold no
// external resources, but callers still Close them like any other session.
func (r *Renderer) Open(ctx context.Context) (lead.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open static session: %w", err)
	}
	return &session{renderer: r}, nil
}

type session struct {
	renderer *Renderer
}

// Render executes a single HTTP GET and returns the response body.
func (s *session) Render(ctx context.Context, url string) (string, error) {
	var (
		body     string
		fetchErr error
	)
	collector := s.renderer.buildCollector(&body, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return "", err
	}
	return body, nil
}

// Close implements lead.Session.
func (s *session) Close() error {
	return nil
}

func (r *Renderer) buildCollector(body *string, fetchErr *error) *colly.Collector {
	// Clones share visited-URL storage; every Render is a fresh fetch.
	collector := r.baseCollector.Clone()
	collector.AllowURLRevisit = true
	if r.cfg.UserAgent != "" {
		collector.UserAgent = r.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !r.cfg.RespectRobots
	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	transport := r.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)
	configureCollectorHooks(collector, body, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, body *string, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = string(r.Body)
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
