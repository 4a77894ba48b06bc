package headless

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	renderer, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer renderer.Close()
	require.Equal(t, 2, cap(renderer.limiter))
	require.Equal(t, 1920, renderer.cfg.WindowWidth)
	require.Equal(t, 1080, renderer.cfg.WindowHeight)
}

func TestRendererNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	renderer := &Renderer{}
	require.Equal(t, 45*time.Second, renderer.navTimeout())
	renderer.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, renderer.navTimeout())
}

func TestRendererSettle(t *testing.T) {
	t.Parallel()

	renderer := &Renderer{}
	require.Equal(t, 500*time.Millisecond, renderer.settle())
	renderer.cfg.Settle = 2 * time.Second
	require.Equal(t, 2*time.Second, renderer.settle())
	renderer.cfg.Settle = -1
	require.Zero(t, renderer.settle())
}

func TestSessionCloseReleasesSlotOnce(t *testing.T) {
	t.Parallel()

	renderer := &Renderer{limiter: make(chan struct{}, 1)}
	require.NoError(t, renderer.acquire(context.Background()))

	canceled := 0
	s := &session{renderer: renderer, cancel: func() { canceled++ }}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, canceled)
	require.Len(t, renderer.limiter, 0)

	_, err := s.Render(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrClosed)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	renderer := &Renderer{limiter: make(chan struct{}, 1)}
	require.NoError(t, renderer.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := renderer.acquire(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestForwardCancelPropagatesParent(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	called := make(chan struct{})
	stop := forwardCancel(parent, func() { close(called) })
	defer stop()

	cancelParent()
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("parent cancellation was not forwarded")
	}
}

func TestNoopRendererError(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Open(context.Background())
	require.ErrorIs(t, err, ErrDisabled)
}
