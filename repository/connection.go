package repository

import (
	"context"
	"log/slog"

	"github.com/repotorpedo/torpedo/db"
	"github.com/repotorpedo/torpedo/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConnectionRepository interface {
	List(ctx context.Context) ([]domain.Connection, error)
	Save(ctx context.Context, conn domain.Connection) error
	Delete(ctx context.Context, providerID string) error
}

type connectionRepository struct {
	db     *gorm.DB
	mapper *ConnectionMapper
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db, mapper: &ConnectionMapper{}}
}

func (r *connectionRepository) List(ctx context.Context) ([]domain.Connection, error) {
	var models []db.ConnectionModel
	if err := r.db.WithContext(ctx).Order("provider_id").Find(&models).Error; err != nil {
		return nil, err
	}

	conns := make([]domain.Connection, len(models))
	for i := range models {
		conns[i] = r.mapper.ToDomain(&models[i])
	}
	return conns, nil
}

func (r *connectionRepository) Save(ctx context.Context, conn domain.Connection) error {
	m := r.mapper.ToModel(conn)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(m).Error
	if err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "save_connection",
			"provider_id", conn.ProviderID,
			"error", err)
	}
	return err
}

func (r *connectionRepository) Delete(ctx context.Context, providerID string) error {
	err := r.db.WithContext(ctx).Delete(&db.ConnectionModel{}, "provider_id = ?", providerID).Error
	if err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "delete_connection",
			"provider_id", providerID,
			"error", err)
	}
	return err
}
