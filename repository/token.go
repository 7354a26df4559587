package repository

import (
	"context"
	"errors"

	"github.com/repotorpedo/torpedo/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// TokenRepository stores opaque ciphertext by reference.
type TokenRepository interface {
	Get(ctx context.Context, ref string) (string, error)
	Put(ctx context.Context, ref, ciphertext string) error
	Delete(ctx context.Context, ref string) error
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Get(ctx context.Context, ref string) (string, error) {
	var m db.TokenModel
	err := r.db.WithContext(ctx).Where("ref = ?", ref).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return m.Ciphertext, nil
}

func (r *tokenRepository) Put(ctx context.Context, ref, ciphertext string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&db.TokenModel{Ref: ref, Ciphertext: ciphertext}).Error
}

func (r *tokenRepository) Delete(ctx context.Context, ref string) error {
	return r.db.WithContext(ctx).Delete(&db.TokenModel{}, "ref = ?", ref).Error
}
