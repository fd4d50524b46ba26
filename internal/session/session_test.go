package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/model"
)

func result(appID string) *analysis.Result {
	m := &model.Model{
		App:       model.Application{ID: appID, Status: model.AppSucceeded},
		Jobs:      map[int]*model.Job{},
		Stages:    map[model.StageKey]*model.Stage{},
		Tasks:     map[int64]*model.Task{},
		Executors: map[string]*model.Executor{},
	}
	return analysis.Analyze(m, analysis.DefaultConfig())
}

func TestRegistryPutGet(t *testing.T) {
	r := NewRegistry(10)
	e := r.Put("/logs/app-1", result("app-1"))
	require.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	got, ok := r.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, "app-1", got.Result.App.ID)
	assert.Equal(t, "/logs/app-1", got.Source)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryEvictsOldest(t *testing.T) {
	r := NewRegistry(3)
	first := r.Put("a", result("a"))
	r.Put("b", result("b"))
	r.Put("c", result("c"))
	r.Put("d", result("d"))

	assert.Equal(t, 3, r.Len())
	_, ok := r.Get(first.ID)
	assert.False(t, ok)
}

func TestRegistryRecentNewestFirst(t *testing.T) {
	r := NewRegistry(10)
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { ts = ts.Add(time.Minute); return ts }

	for i := range 5 {
		r.Put(fmt.Sprintf("src-%d", i), result(fmt.Sprintf("app-%d", i)))
	}

	recent := r.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "src-4", recent[0].Source)
	assert.Equal(t, "src-2", recent[2].Source)
	assert.True(t, recent[0].CreatedAt.After(recent[1].CreatedAt))

	assert.Len(t, r.Recent(0), 5)
	assert.Len(t, r.Recent(100), 5)
}

func TestRegistryDeleteAndClear(t *testing.T) {
	r := NewRegistry(10)
	e := r.Put("a", result("a"))
	r.Put("b", result("b"))

	assert.True(t, r.Delete(e.ID))
	assert.False(t, r.Delete(e.ID))
	assert.Equal(t, 1, r.Len())

	assert.Equal(t, 1, r.Clear())
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Recent(0))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(50)
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 20 {
				e := r.Put(fmt.Sprintf("src-%d-%d", i, j), result("app"))
				r.Get(e.ID)
				r.Recent(5)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
