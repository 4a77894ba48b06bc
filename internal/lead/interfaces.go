package lead

import (
	"context"
	"io"
	"time"
)

// Renderer opens browser sessions. Each Lead Fetcher invocation owns exactly one
// session and must Close it before returning.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Session renders URLs into fully loaded HTML documents.
type Session interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore persists finished Lead Records for a batch.
type RecordStore interface {
	SaveRecords(ctx context.Context, batchID string, records []Record) error
}

// Publisher pushes lead notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch IDs.
type IDGenerator interface {
	NewID() (string, error)
}
