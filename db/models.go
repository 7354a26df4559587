// Package db provides database models and utilities for torpedo.
package db

import (
	"time"

	"github.com/google/uuid"
)

type BaseModel struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConnectionModel is the persisted state of one provider connection.
// Token material lives in TokenModel or the OS keyring, never here.
type ConnectionModel struct {
	ProviderID       string `gorm:"primaryKey;check:provider_id <> ''"`
	Status           string `gorm:"not null;check:status <> ''"` // disconnected, connecting, connected, error
	AccountLabel     string `gorm:"not null;default:''"`
	TokenRef         string `gorm:"not null;default:''"`
	LastErrorKind    *string
	LastErrorMessage *string
	ConnectedAt      *time.Time
	UpdatedAt        time.Time
}

func (ConnectionModel) TableName() string {
	return "connections"
}

// TokenModel holds a fernet-encrypted provider token.
type TokenModel struct {
	Ref        string `gorm:"primaryKey;check:ref <> ''"`
	Ciphertext string `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

func (TokenModel) TableName() string {
	return "tokens"
}

// HistoryRecordModel is one deployment history entry. Higher positions are newer.
type HistoryRecordModel struct {
	BaseModel
	Position int64  `gorm:"not null;uniqueIndex"`
	URL      string `gorm:"not null;check:url <> ''"`
	Date     string `gorm:"not null;check:date <> ''"`
	Status   string `gorm:"not null;check:status IN ('Success','Failed')"`
}

func (HistoryRecordModel) TableName() string {
	return "history_records"
}

type MigrationModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;unique"`
	AppliedAt time.Time
}

func (MigrationModel) TableName() string {
	return "migrations"
}
