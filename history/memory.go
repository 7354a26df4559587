package history

import (
	"context"
	"slices"
	"sync"

	"github.com/repotorpedo/torpedo/domain"
)

// MemoryRepository keeps history in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	recs []domain.HistoryRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) List(_ context.Context) ([]domain.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.recs), nil
}

func (r *MemoryRepository) Prepend(_ context.Context, rec domain.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = slices.Insert(r.recs, 0, rec)
	return nil
}

func (r *MemoryRepository) ReplaceAll(_ context.Context, recs []domain.HistoryRecord) error {
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = slices.Clone(recs)
	return nil
}
