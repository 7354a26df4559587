// Package historytest holds contract tests every history.Repository must pass.
package historytest

import (
	"context"
	"testing"

	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository.
type Factory func(t *testing.T) history.Repository

func Run(t *testing.T, factory Factory) {
	t.Run("EmptyList", func(t *testing.T) {
		repo := factory(t)
		recs, err := repo.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("PrependKeepsNewestFirst", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		first := record("https://first.example", domain.HistoryStatusSuccess)
		second := record("https://second.example", domain.HistoryStatusFailed)
		require.NoError(t, repo.Prepend(ctx, first))
		require.NoError(t, repo.Prepend(ctx, second))

		recs, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []domain.HistoryRecord{second, first}, recs)
	})

	t.Run("ReplaceAllPreservesOrder", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		require.NoError(t, repo.Prepend(ctx, record("https://old.example", domain.HistoryStatusSuccess)))

		replacement := []domain.HistoryRecord{
			record("https://c.example", domain.HistoryStatusSuccess),
			record("https://b.example", domain.HistoryStatusFailed),
			record("https://a.example", domain.HistoryStatusSuccess),
		}
		require.NoError(t, repo.ReplaceAll(ctx, replacement))

		recs, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, replacement, recs)

		require.NoError(t, repo.Prepend(ctx, record("https://d.example", domain.HistoryStatusSuccess)))
		recs, err = repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 4)
		assert.Equal(t, "https://d.example", recs[0].URL)
	})

	t.Run("ReplaceAllWithEmptyClears", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		require.NoError(t, repo.Prepend(ctx, record("https://old.example", domain.HistoryStatusSuccess)))

		require.NoError(t, repo.ReplaceAll(ctx, nil))

		recs, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("ListReturnsCopy", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		require.NoError(t, repo.Prepend(ctx, record("https://a.example", domain.HistoryStatusSuccess)))

		recs, err := repo.List(ctx)
		require.NoError(t, err)
		recs[0].URL = "mutated"

		again, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://a.example", again[0].URL)
	})
}

func record(url string, status domain.HistoryStatus) domain.HistoryRecord {
	return domain.HistoryRecord{URL: url, Date: "2024-05-01T10:00:00Z", Status: status}
}
