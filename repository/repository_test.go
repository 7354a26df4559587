package repository

import (
	"context"
	"testing"
	"time"

	"github.com/repotorpedo/torpedo/db"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.InitDatabase(db.DBConfig{Path: ":memory:", LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAll(database))
	return database
}

func TestConnectionRepository_SaveAndList(t *testing.T) {
	repo := NewConnectionRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	connected := domain.NewConnection("render").Connected("jane@example.com", "provider/render", now)
	failed := domain.NewConnection("github").Failed(domain.AuthError("connect", "access denied"), now)

	require.NoError(t, repo.Save(ctx, connected))
	require.NoError(t, repo.Save(ctx, failed))

	conns, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 2)

	assert.Equal(t, "github", conns[0].ProviderID)
	assert.Equal(t, domain.ConnectionStatusError, conns[0].Status)
	require.NotNil(t, conns[0].LastError)
	assert.Equal(t, domain.KindAuth, conns[0].LastError.Kind)
	assert.Equal(t, "access denied", conns[0].LastError.Message)

	assert.Equal(t, "render", conns[1].ProviderID)
	assert.True(t, conns[1].IsConnected())
	assert.Equal(t, "jane@example.com", conns[1].AccountLabel)
	assert.Equal(t, "provider/render", conns[1].TokenRef)
	require.NotNil(t, conns[1].ConnectedAt)
}

func TestConnectionRepository_SaveOverwrites(t *testing.T) {
	repo := NewConnectionRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	conn := domain.NewConnection("render").Connected("jane@example.com", "provider/render", now)
	require.NoError(t, repo.Save(ctx, conn))
	require.NoError(t, repo.Save(ctx, conn.Disconnected(now)))

	conns, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, domain.ConnectionStatusDisconnected, conns[0].Status)
	assert.Empty(t, conns[0].AccountLabel)
	assert.Nil(t, conns[0].ConnectedAt)

	require.NoError(t, repo.Delete(ctx, "render"))
	conns, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestTokenRepository(t *testing.T) {
	repo := NewTokenRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "provider/github")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Put(ctx, "provider/github", "sealed-1"))
	require.NoError(t, repo.Put(ctx, "provider/github", "sealed-2"))

	got, err := repo.Get(ctx, "provider/github")
	require.NoError(t, err)
	assert.Equal(t, "sealed-2", got)

	require.NoError(t, repo.Delete(ctx, "provider/github"))
	_, err = repo.Get(ctx, "provider/github")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryRepository_ReplaceAllRollsBackOnInvalidRow(t *testing.T) {
	repo := NewHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	original := domain.HistoryRecord{URL: "https://kept.example", Date: "2024-03-01", Status: domain.HistoryStatusSuccess}
	require.NoError(t, repo.Prepend(ctx, original))

	err := repo.ReplaceAll(ctx, []domain.HistoryRecord{
		{URL: "https://new.example", Date: "2024-04-01", Status: domain.HistoryStatusSuccess},
		{URL: "https://bad.example", Date: "2024-04-02", Status: "Pending"},
	})
	require.Error(t, err)

	recs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.HistoryRecord{original}, recs)
}
