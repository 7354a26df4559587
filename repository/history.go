package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/repotorpedo/torpedo/db"
	"github.com/repotorpedo/torpedo/domain"
	"gorm.io/gorm"
)

// HistoryRepository keeps history records newest first.
type HistoryRepository interface {
	List(ctx context.Context) ([]domain.HistoryRecord, error)
	Prepend(ctx context.Context, rec domain.HistoryRecord) error
	ReplaceAll(ctx context.Context, recs []domain.HistoryRecord) error
}

type historyRepository struct {
	db     *gorm.DB
	mapper *HistoryMapper
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db, mapper: &HistoryMapper{}}
}

func (r *historyRepository) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	var models []db.HistoryRecordModel
	if err := r.db.WithContext(ctx).Order("position DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	recs := make([]domain.HistoryRecord, len(models))
	for i := range models {
		recs[i] = r.mapper.ToDomain(&models[i])
	}
	return recs, nil
}

func (r *historyRepository) Prepend(ctx context.Context, rec domain.HistoryRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var top int64
		if err := tx.Model(&db.HistoryRecordModel{}).
			Select("COALESCE(MAX(position), 0)").
			Scan(&top).Error; err != nil {
			return err
		}

		m := r.mapper.ToModel(rec, top+1)
		m.ID = uuid.New()
		return tx.Create(m).Error
	})
	if err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "prepend_history",
			"url", rec.URL,
			"error", err)
	}
	return err
}

// ReplaceAll swaps the whole history in one transaction. recs[0] is the newest.
func (r *historyRepository) ReplaceAll(ctx context.Context, recs []domain.HistoryRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM history_records").Error; err != nil {
			return err
		}

		n := int64(len(recs))
		for i, rec := range recs {
			m := r.mapper.ToModel(rec, n-int64(i))
			m.ID = uuid.New()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "replace_history",
			"records", len(recs),
			"error", err)
	}
	return err
}
