package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/lead-scraper/internal/lead"
)

// ErrBatchNotFound is returned when no records were saved for a batch.
var ErrBatchNotFound = errors.New("batch not found")

// RecordStore keeps finished batches in memory. It implements lead.RecordStore.
type RecordStore struct {
	mu      sync.RWMutex
	batches map[string][]lead.Record
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{batches: make(map[string][]lead.Record)}
}

// SaveRecords stores a copy of records under batchID, replacing any prior batch.
func (s *RecordStore) SaveRecords(_ context.Context, batchID string, records []lead.Record) error {
	if batchID == "" {
		return fmt.Errorf("batch id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID] = append([]lead.Record(nil), records...)
	return nil
}

// Records returns the records saved for batchID in input order.
func (s *RecordStore) Records(_ context.Context, batchID string) ([]lead.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.batches[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return append([]lead.Record(nil), records...), nil
}
