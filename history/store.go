// Package history keeps the ordered record of finished deployments and
// converts it to and from the portable JSON export format.
package history

import (
	"context"
	"log/slog"

	"github.com/repotorpedo/torpedo/domain"
)

// Repository persists history records, newest first.
type Repository interface {
	List(ctx context.Context) ([]domain.HistoryRecord, error)
	Prepend(ctx context.Context, rec domain.HistoryRecord) error
	ReplaceAll(ctx context.Context, recs []domain.HistoryRecord) error
}

// Store is the history API used by the pipeline, the CLI and the HTTP API.
// A nil error from Record or Import means the change is durable.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Record prepends rec.
func (s *Store) Record(ctx context.Context, rec domain.HistoryRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := s.repo.Prepend(ctx, rec); err != nil {
		return domain.Wrap(domain.KindProvider, "record history", err, "failed to save deployment history")
	}
	slog.Debug("Deployment recorded",
		"layer", "history",
		"operation", "record",
		"url", rec.URL,
		"status", rec.Status)
	return nil
}

// List returns all records, newest first.
func (s *Store) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindProvider, "list history", err, "failed to read deployment history")
	}
	return recs, nil
}

// Export serializes the full history in list order.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Encode(recs)
}

// Import replaces the history with the records in data. Malformed input
// leaves the history untouched.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	recs, err := Decode(data)
	if err != nil {
		return 0, err
	}
	if err := s.repo.ReplaceAll(ctx, recs); err != nil {
		return 0, domain.Wrap(domain.KindProvider, "import history", err, "failed to save imported history")
	}
	slog.Info("Deployment history imported",
		"layer", "history",
		"operation", "import",
		"records", len(recs))
	return len(recs), nil
}
