package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/lead-scraper/internal/lead"
)

// ErrDisabled reports that no renderer is configured.
var ErrDisabled = errors.New("renderer not configured")

// Noop implements lead.Renderer but always fails to open a session, so every
// URL produces an error record.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Open returns ErrDisabled.
func (Noop) Open(context.Context) (lead.Session, error) {
	return nil, ErrDisabled
}
