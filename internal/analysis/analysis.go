package analysis

import (
	"encoding/json"

	"github.com/ashita-ai/hibana/internal/model"
)

// Config bundles the analysis thresholds. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	Skew SkewConfig `json:"skew"`
}

// DefaultConfig returns the stock analysis configuration.
func DefaultConfig() Config {
	return Config{Skew: DefaultSkewConfig()}
}

// Result is the complete analysis of one application. It is immutable once
// built; accessors return copies or fresh slices, so a Result can be shared
// across goroutines freely.
type Result struct {
	App   model.Application `json:"application"`
	Diags model.Diagnostics `json:"diagnostics"`

	Metrics   AppMetrics        `json:"metrics"`
	Stages    []StageMetrics    `json:"stages"`
	Executors []ExecutorMetrics `json:"executors"`
	Anomalies []Anomaly         `json:"anomalies"`

	// recommendations is kept unexported so the filtered accessor is the
	// only read path.
	recommendations []Recommendation
}

// Analyze derives the full analysis from a model. It is a pure function of
// its inputs: the same model and config always produce an identical Result,
// including ordering.
func Analyze(m *model.Model, cfg Config) *Result {
	stages := make([]StageMetrics, 0, len(m.StageOrder))
	for _, s := range m.StagesInOrder() {
		stages = append(stages, computeStageMetrics(m, s))
	}

	executors := make([]ExecutorMetrics, 0, len(m.ExecutorOrder))
	for _, id := range m.ExecutorOrder {
		if id == model.DriverExecutorID {
			continue
		}
		executors = append(executors, computeExecutorMetrics(m, m.Executors[id]))
	}

	app := computeAppMetrics(m, executors)
	anomalies := detectAnomalies(cfg.Skew, app, stages, executors)
	recs := recommend(ruleInput{
		cfg:       cfg.Skew,
		props:     m.SparkProperties,
		app:       app,
		stages:    stages,
		executors: executors,
		anomalies: anomalies,
	})

	return &Result{
		App:             m.App,
		Diags:           m.Diags,
		Metrics:         app,
		Stages:          stages,
		Executors:       executors,
		Anomalies:       anomalies,
		recommendations: recs,
	}
}

// Filter narrows a recommendation listing. Zero fields match everything.
type Filter struct {
	Category Category `json:"category,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

// Recommendations returns the recommendations matching the filter, in
// priority order. The returned slice is the caller's to keep.
func (r *Result) Recommendations(f Filter) []Recommendation {
	out := make([]Recommendation, 0, len(r.recommendations))
	for _, rec := range r.recommendations {
		if f.Category != "" && rec.Category != f.Category {
			continue
		}
		if f.Priority != "" && rec.Priority != f.Priority {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// AllRecommendations returns every recommendation in priority order.
func (r *Result) AllRecommendations() []Recommendation {
	return r.Recommendations(Filter{})
}

// resultJSON is the wire shape of a Result. Recommendations travel under
// their own key so serialized results round-trip through storage.
type resultJSON struct {
	App             model.Application `json:"application"`
	Diags           model.Diagnostics `json:"diagnostics"`
	Metrics         AppMetrics        `json:"metrics"`
	Stages          []StageMetrics    `json:"stages"`
	Executors       []ExecutorMetrics `json:"executors"`
	Anomalies       []Anomaly         `json:"anomalies"`
	Recommendations []Recommendation  `json:"recommendations"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		App:             r.App,
		Diags:           r.Diags,
		Metrics:         r.Metrics,
		Stages:          r.Stages,
		Executors:       r.Executors,
		Anomalies:       r.Anomalies,
		Recommendations: r.recommendations,
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w resultJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Result{
		App:             w.App,
		Diags:           w.Diags,
		Metrics:         w.Metrics,
		Stages:          w.Stages,
		Executors:       w.Executors,
		Anomalies:       w.Anomalies,
		recommendations: w.Recommendations,
	}
	return nil
}
