package memory

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/manager-sync/internal/domain/element"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	"github.com/riskibarqy/manager-sync/internal/domain/userstat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameRepository_ListActiveInIDOrder(t *testing.T) {
	t.Parallel()

	repo := NewGameRepository([]game.Game{
		{ID: 3, GameKey: "c", IsActive: true},
		{GameKey: "auto", IsActive: true},
		{ID: 1, GameKey: "a", IsActive: false},
	})

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	active, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.EqualValues(t, 3, active[0].ID)
	assert.EqualValues(t, 4, active[1].ID)
	assert.Equal(t, "auto", active[1].GameKey)
}

func TestGameRepository_MetadataAndSyncStamp(t *testing.T) {
	t.Parallel()

	repo := NewGameRepository([]game.Game{{ID: 1, GameKey: "a", IsActive: true}})
	ctx := context.Background()

	require.NoError(t, repo.UpdateMetadata(ctx, 1, game.Metadata{Name: "Hockey", CurrentRound: 4, RoundState: "open"}))
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSynced(ctx, 1, at))

	g, found, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Hockey", g.Name)
	assert.Equal(t, 4, g.CurrentRound)
	require.NotNil(t, g.LastSyncedAt)
	assert.True(t, g.LastSyncedAt.Equal(at))

	assert.Error(t, repo.MarkSynced(ctx, 99, at))
}

func TestSyncLogRepository_Lifecycle(t *testing.T) {
	t.Parallel()

	repo := NewSyncLogRepository()
	ctx := context.Background()
	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	first, err := repo.Start(ctx, synclog.Entry{GameID: 1, Trigger: synclog.TriggerScheduled, StartedAt: started})
	require.NoError(t, err)
	second, err := repo.Start(ctx, synclog.Entry{GameID: 1, Trigger: synclog.TriggerManual, StartedAt: started.Add(time.Minute)})
	require.NoError(t, err)

	require.NoError(t, repo.Finish(ctx, first, synclog.Outcome{
		Status:         synclog.StatusCompleted,
		ElementsSynced: 10,
		CompletedAt:    started.Add(1500 * time.Millisecond),
	}))
	assert.Error(t, repo.Finish(ctx, first, synclog.Outcome{Status: synclog.StatusFailed}), "terminal entries must not change")

	entries, err := repo.ListByGame(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, synclog.StatusStarted, entries[0].Status)
	assert.Equal(t, synclog.StatusCompleted, entries[1].Status)
	assert.EqualValues(t, 1500, entries[1].DurationMs)

	limited, err := repo.ListByGame(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUpsertRepositoriesReplaceByKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	elements := NewElementRepository()
	require.NoError(t, elements.UpsertBatch(ctx, []element.Element{{GameID: 1, ExternalElementID: 5, Value: 10}}))
	require.NoError(t, elements.UpsertBatch(ctx, []element.Element{{GameID: 1, ExternalElementID: 5, Value: 12}}))
	rows, err := elements.ListByGame(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 12, rows[0].Value)

	users := NewUserGameStatRepository()
	require.NoError(t, users.UpsertBatch(ctx, []userstat.UserGameStat{
		{ExternalUserID: "u-1", GameID: 1},
		{ExternalUserID: "u-1 ", GameID: 1},
		{ExternalUserID: "u-1", GameID: 2},
	}))
	count, err := users.CountByGame(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBudgetRepository(t *testing.T) {
	t.Parallel()

	repo := NewBudgetRepository()
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	n, err := repo.Increment(ctx, day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, repo.EnsureDay(ctx, day))
	require.NoError(t, repo.SetCount(ctx, day, 41))
	n, err = repo.Increment(ctx, day)
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	other, err := repo.Count(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, other)
}
