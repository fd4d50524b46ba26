package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/model"
	"github.com/ashita-ai/hibana/internal/session"
)

func sampleEntry() *session.Entry {
	m := &model.Model{
		App: model.Application{
			ID:        "application_1700000000000_0042",
			Name:      "nightly-etl",
			User:      "svc-etl",
			StartTime: 1_000,
			EndTime:   601_000,
			Status:    model.AppSucceeded,
		},
		SparkProperties: map[string]string{"spark.executor.memory": "1g"},
		Jobs:            map[int]*model.Job{},
		Stages:          map[model.StageKey]*model.Stage{},
		Tasks:           map[int64]*model.Task{},
		Executors: map[string]*model.Executor{
			"1": {ID: "1", Host: "worker-1", Cores: 4, AddedTime: 1_000, PeakTaskMemory: 900 << 20},
		},
		ExecutorOrder: []string{"1"},
		LastEventTime: 601_000,
	}
	s := &model.Stage{
		ID: 0, Name: "map at etl.scala:42",
		SubmissionTime: 1_000, CompletionTime: 500_000,
		Status: model.StageCompleted,
	}
	m.Stages[s.Key()] = s
	m.StageOrder = []model.StageKey{s.Key()}
	for i := int64(1); i <= 20; i++ {
		dur := int64(1_000)
		if i == 20 {
			dur = 60_000
		}
		t := &model.Task{
			ID: i, Stage: s.Key(), ExecutorID: "1",
			LaunchTime: 1_000, FinishTime: 1_000 + dur,
			Status:  model.TaskSucceeded,
			Metrics: model.TaskMetrics{RunTime: dur},
		}
		m.Tasks[i] = t
		m.TaskOrder = append(m.TaskOrder, i)
		s.CompletedTasks++
		s.NumTasks++
	}

	reg := session.NewRegistry(10)
	return reg.Put("/logs/app-42", analysis.Analyze(m, analysis.DefaultConfig()))
}

func TestRenderReport(t *testing.T) {
	e := sampleEntry()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, e))

	html := buf.String()
	assert.Contains(t, html, "nightly-etl")
	assert.Contains(t, html, "application_1700000000000_0042")
	assert.Contains(t, html, "map at etl.scala:42")
	assert.Contains(t, html, e.ID)
	// the skewed stage shows up in both anomalies and recommendations
	assert.Contains(t, html, "stage_skew")
	assert.Contains(t, html, "rebalance data in stage 0")
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
}

func TestRenderEscapesUntrustedFields(t *testing.T) {
	e := sampleEntry()
	e.Result.App.Name = `<script>alert("x")</script>`

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, e))
	assert.NotContains(t, buf.String(), "<script>alert")
}

func TestHumanizers(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 GiB", humanBytes(2<<30))
	assert.Equal(t, "250ms", humanMillis(250))
	assert.Equal(t, "1.5s", humanMillis(1500))
	assert.Equal(t, "2.0m", humanMillis(120_000))
	assert.Equal(t, "n/a", humanPercent(analysis.Undefined))
	assert.Equal(t, "50.0%", humanPercent(analysis.Defined(0.5)))
	assert.Equal(t, "unknown", unixMillis(0))
}
