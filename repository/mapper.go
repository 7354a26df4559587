// Package repository provides the data access layer for connections,
// sealed tokens and deployment history.
package repository

import (
	"log/slog"

	"github.com/repotorpedo/torpedo/db"
	"github.com/repotorpedo/torpedo/domain"
)

type ConnectionMapper struct{}

func (m *ConnectionMapper) ToDomain(c *db.ConnectionModel) domain.Connection {
	status, err := domain.ParseConnectionStatus(c.Status)
	if err != nil {
		slog.Warn("Unknown connection status in database",
			"layer", "repository",
			"provider_id", c.ProviderID,
			"status", c.Status)
		status = domain.ConnectionStatusDisconnected
	}

	conn := domain.Connection{
		ProviderID:   c.ProviderID,
		Status:       status,
		AccountLabel: c.AccountLabel,
		TokenRef:     c.TokenRef,
		ConnectedAt:  c.ConnectedAt,
		UpdatedAt:    c.UpdatedAt,
	}

	if c.LastErrorKind != nil {
		kind, err := domain.ParseErrorKind(*c.LastErrorKind)
		if err != nil {
			kind = domain.KindProvider
		}
		conn.LastError = &domain.Error{Kind: kind}
		if c.LastErrorMessage != nil {
			conn.LastError.Message = *c.LastErrorMessage
		}
	}
	return conn
}

func (m *ConnectionMapper) ToModel(c domain.Connection) *db.ConnectionModel {
	model := &db.ConnectionModel{
		ProviderID:   c.ProviderID,
		Status:       c.Status.String(),
		AccountLabel: c.AccountLabel,
		TokenRef:     c.TokenRef,
		ConnectedAt:  c.ConnectedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.LastError != nil {
		kind := c.LastError.Kind.String()
		message := domain.UserMessage(c.LastError)
		model.LastErrorKind = &kind
		model.LastErrorMessage = &message
	}
	return model
}

type HistoryMapper struct{}

func (m *HistoryMapper) ToDomain(h *db.HistoryRecordModel) domain.HistoryRecord {
	return domain.HistoryRecord{
		URL:    h.URL,
		Date:   h.Date,
		Status: domain.HistoryStatus(h.Status),
	}
}

func (m *HistoryMapper) ToModel(r domain.HistoryRecord, position int64) *db.HistoryRecordModel {
	model := &db.HistoryRecordModel{
		Position: position,
		URL:      r.URL,
		Date:     r.Date,
		Status:   r.Status.String(),
	}
	return model
}
