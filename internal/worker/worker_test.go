package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/lead"
	"github.com/JakeFAU/lead-scraper/internal/progress"
)

const (
	landingURL = "https://acme.test"
	contactURL = "https://acme.test/contact-us"
)

const landingPage = `<html><head><title> Acme Realtor </title>
<meta name="description" content="Homes in town"></head>
<body><p>Welcome</p><a href="/about">About</a><a href="/contact-us">Contact</a>
<a href="https://www.facebook.com/acme">fb</a></body></html>`

const contactPage = `<html><body><p>Write to sales@acme.test or call (555) 123-4567</p>
<a href="https://linkedin.com/company/acme">in</a></body></html>`

func TestFetcherMergesContactPage(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(map[string]string{
		landingURL: landingPage,
		contactURL: contactPage,
	})
	f := New(renderer, nil, nil, nil, nil, Config{}, zap.NewNop())

	rec := f.Fetch(context.Background(), landingURL)

	require.Equal(t, lead.StatusOK, rec.Status)
	require.Equal(t, landingURL, rec.URL)
	require.Equal(t, "Acme Realtor", rec.WebsiteName)
	require.Equal(t, "Homes in town", rec.Description)
	require.Equal(t, "sales@acme.test", rec.Emails)
	require.Equal(t, "(555) 123-4567", rec.PhoneNumbers)
	require.Equal(t, "https://www.facebook.com/acme, https://linkedin.com/company/acme", rec.SocialLinks)
	require.Equal(t, "Real Estate", rec.BusinessType)
	require.Equal(t, []string{landingURL, contactURL}, renderer.rendered())
	require.Equal(t, 1, renderer.opens())
	require.Equal(t, 1, renderer.closes())
}

func TestFetcherWithoutContactLink(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(map[string]string{
		landingURL: `<html><head><title>Plain</title></head><body>hello</body></html>`,
	})
	f := New(renderer, nil, nil, nil, nil, Config{}, nil)

	rec := f.Fetch(context.Background(), landingURL)

	require.Equal(t, lead.NewRecord(landingURL, lead.Fields{Title: "Plain", Category: lead.GeneralType}), rec)
	require.Equal(t, []string{landingURL}, renderer.rendered())
}

func TestFetcherSkipContact(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(map[string]string{landingURL: landingPage, contactURL: contactPage})
	f := New(renderer, nil, nil, nil, nil, Config{SkipContact: true}, zap.NewNop())

	rec := f.Fetch(context.Background(), landingURL)

	require.Equal(t, lead.NoEmails, rec.Emails)
	require.Equal(t, []string{landingURL}, renderer.rendered())
}

func TestFetcherRenderFailureBecomesErrorRecord(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(nil)
	renderer.errs[landingURL] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	f := New(renderer, nil, nil, nil, nil, Config{}, zap.NewNop())

	rec := f.Fetch(context.Background(), landingURL)

	require.True(t, rec.Failed())
	require.Equal(t, lead.Record{
		URL:          landingURL,
		WebsiteName:  "Error",
		Description:  "-",
		Emails:       "Error: net::ERR_NAME_NOT_RESOLVED",
		PhoneNumbers: "-",
		SocialLinks:  "-",
		BusinessType: "-",
		Status:       lead.StatusError,
	}, rec)
	require.Equal(t, 1, renderer.closes())
}

func TestFetcherContactFailureFallsBackToLandingPage(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(map[string]string{
		landingURL: `<html><head><title>Gym</title></head><body>info@gym.test
<a href="contact.html">Contact</a></body></html>`,
	})
	renderer.errs[landingURL+"/contact.html"] = errors.New("timeout")
	emitter := &recordingEmitter{}
	f := New(renderer, nil, nil, emitter, nil, Config{}, zap.NewNop())

	rec := f.FetchJob(context.Background(), uuid.New(), lead.Job{Index: 2, URL: landingURL})

	require.Equal(t, lead.StatusOK, rec.Status)
	require.Equal(t, "info@gym.test", rec.Emails)
	require.Contains(t, emitter.stages(), progress.StageContactError)
	require.Equal(t, progress.StageJobDone, emitter.stages()[len(emitter.stages())-1])
	require.Equal(t, 1, renderer.closes())
}

func TestFetcherRecoversRendererPanic(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(nil)
	renderer.panics[landingURL] = "kaboom"
	f := New(renderer, nil, nil, nil, nil, Config{}, zap.NewNop())

	rec := f.Fetch(context.Background(), landingURL)

	require.True(t, rec.Failed())
	require.Equal(t, "Error: renderer panic: kaboom", rec.Emails)
	require.Equal(t, 1, renderer.closes())
}

func TestFetcherOpenFailure(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(nil)
	renderer.openErr = errors.New("browser unavailable")
	f := New(renderer, nil, nil, nil, nil, Config{}, zap.NewNop())

	rec := f.Fetch(context.Background(), landingURL)

	require.Equal(t, "Error: browser unavailable", rec.Emails)
	require.Equal(t, 0, renderer.closes())
}

func TestFetcherLimiterFailure(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(map[string]string{landingURL: landingPage})
	f := New(renderer, nil, failingLimiter{}, nil, nil, Config{}, zap.NewNop())

	rec := f.Fetch(context.Background(), landingURL)

	require.True(t, rec.Failed())
	require.Contains(t, rec.Emails, "wait for render budget")
	require.Equal(t, 0, renderer.opens())
}

func TestFetcherEmitsStagesInOrder(t *testing.T) {
	t.Parallel()

	renderer := newFakeRenderer(map[string]string{landingURL: landingPage, contactURL: contactPage})
	emitter := &recordingEmitter{}
	clock := &stepClock{now: time.Unix(0, 0).UTC()}
	f := New(renderer, nil, nil, emitter, clock, Config{}, zap.NewNop())
	batchID := uuid.New()

	f.FetchJob(context.Background(), batchID, lead.Job{Index: 7, URL: landingURL})

	require.Equal(t, []progress.Stage{
		progress.StageJobStart,
		progress.StageRenderDone,
		progress.StageContactFound,
		progress.StageContactDone,
		progress.StageExtractDone,
		progress.StageJobDone,
	}, emitter.stages())
	for _, evt := range emitter.all() {
		require.NoError(t, evt.Validate())
		require.Equal(t, 7, evt.Index)
		require.Equal(t, batchID, evt.BatchUUID())
		require.Equal(t, "acme.test", evt.Site)
	}
	last := emitter.all()[len(emitter.all())-1]
	require.Positive(t, last.Dur)
}

func TestFetchWithoutBatchEmitsNothing(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	f := New(newFakeRenderer(map[string]string{landingURL: landingPage}), nil, nil, emitter, nil, Config{}, nil)
	f.Fetch(context.Background(), landingURL)
	require.Empty(t, emitter.all())
}

type fakeRenderer struct {
	mu      sync.Mutex
	pages   map[string]string
	errs    map[string]error
	panics  map[string]string
	openErr error
	calls   []string
	opened  int
	closed  int
}

func newFakeRenderer(pages map[string]string) *fakeRenderer {
	if pages == nil {
		pages = map[string]string{}
	}
	return &fakeRenderer{
		pages:  pages,
		errs:   map[string]error{},
		panics: map[string]string{},
	}
}

func (r *fakeRenderer) Open(context.Context) (lead.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}
	r.opened++
	return &fakeSession{r: r}, nil
}

func (r *fakeRenderer) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRenderer) opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

func (r *fakeRenderer) closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeSession struct {
	r *fakeRenderer
}

func (s *fakeSession) Render(_ context.Context, url string) (string, error) {
	s.r.mu.Lock()
	s.r.calls = append(s.r.calls, url)
	msg, shouldPanic := s.r.panics[url]
	err := s.r.errs[url]
	page, ok := s.r.pages[url]
	s.r.mu.Unlock()

	if shouldPanic {
		panic(msg)
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("not found: " + url)
	}
	return page, nil
}

func (s *fakeSession) Close() error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.closed++
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) all() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

func (e *recordingEmitter) stages() []progress.Stage {
	var out []progress.Stage
	for _, evt := range e.all() {
		out = append(out, evt.Stage)
	}
	return out
}

type failingLimiter struct{}

func (failingLimiter) Wait(context.Context, string) error {
	return context.DeadlineExceeded
}

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
