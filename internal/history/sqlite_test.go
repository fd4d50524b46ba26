package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/history"
	"github.com/ashita-ai/hibana/internal/model"
)

func sampleRecord(appID string, created time.Time) history.Record {
	m := &model.Model{
		App: model.Application{
			ID:        appID,
			Name:      "etl",
			StartTime: 1_000,
			EndTime:   60_000,
			Status:    model.AppSucceeded,
		},
		Jobs:      map[int]*model.Job{},
		Stages:    map[model.StageKey]*model.Stage{},
		Tasks:     map[int64]*model.Task{},
		Executors: map[string]*model.Executor{},
	}
	return history.Record{
		ID:        uuid.NewString(),
		Source:    "/logs/" + appID,
		AppID:     appID,
		AppName:   "etl",
		Status:    string(model.AppSucceeded),
		CreatedAt: created,
		Result:    analysis.Analyze(m, analysis.DefaultConfig()),
	}
}

func openSQLite(t *testing.T) *history.SQLiteStore {
	t.Helper()
	s, err := history.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// storeTest exercises the full Store contract against any backend.
func storeTest(t *testing.T, s history.Store) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var recs []history.Record
	for i := range 3 {
		rec := sampleRecord(fmt.Sprintf("application_1700000000000_%04d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Save(ctx, rec))
		recs = append(recs, rec)
	}

	got, err := s.Get(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recs[0].AppID, got.AppID)
	require.NotNil(t, got.Result)
	assert.Equal(t, recs[0].AppID, got.Result.App.ID)
	assert.True(t, got.CreatedAt.Equal(recs[0].CreatedAt))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, recs[2].ID, recent[0].ID)
	assert.Equal(t, recs[1].ID, recent[1].ID)
	assert.Nil(t, recent[0].Result)

	// save again overwrites in place
	recs[0].Status = string(model.AppFailed)
	require.NoError(t, s.Save(ctx, recs[0]))
	got, err = s.Get(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.AppFailed), got.Status)

	require.NoError(t, s.Delete(ctx, recs[0].ID))
	assert.ErrorIs(t, s.Delete(ctx, recs[0].ID), history.ErrNotFound)
	_, err = s.Get(ctx, recs[0].ID)
	assert.ErrorIs(t, err, history.ErrNotFound)

	require.NoError(t, s.Ping(ctx))
}

func TestSQLiteStore(t *testing.T) {
	storeTest(t, openSQLite(t))
}

func TestSQLiteStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/history.db"

	s, err := history.OpenSQLite(ctx, path)
	require.NoError(t, err)
	rec := sampleRecord("application_1700000000000_0042", time.Now().UTC())
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Close())

	// records survive reopen
	s, err = history.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.AppID, got.AppID)
}
