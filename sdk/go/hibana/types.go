package hibana

import "time"

// AnalysisSummary is the list-view projection of an analysis returned by
// Analyze, Upload, and List.
type AnalysisSummary struct {
	AnalysisID string    `json:"analysis_id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`

	AppID           string `json:"app_id"`
	AppName         string `json:"app_name"`
	Status          string `json:"status"`
	DurationMs      int64  `json:"duration_ms"`
	Stages          int    `json:"stages"`
	Tasks           int    `json:"tasks"`
	Anomalies       int    `json:"anomalies"`
	Recommendations int    `json:"recommendations"`
}

// AnalysisDetail is the full single-analysis response from Get.
type AnalysisDetail struct {
	AnalysisID string    `json:"analysis_id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	Result     *Result   `json:"result"`
}

// Result is the complete analysis of one Spark application run.
type Result struct {
	App             Application       `json:"application"`
	Diags           Diagnostics       `json:"diagnostics"`
	Metrics         AppMetrics        `json:"metrics"`
	Stages          []StageMetrics    `json:"stages"`
	Executors       []ExecutorMetrics `json:"executors"`
	Anomalies       []Anomaly         `json:"anomalies"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// Application identifies the analyzed Spark application.
type Application struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	User         string `json:"user,omitempty"`
	SparkVersion string `json:"spark_version,omitempty"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time,omitempty"`
	Status       string `json:"status"`
}

// Diagnostics reports input quality counters gathered while parsing.
type Diagnostics struct {
	MalformedLines     int `json:"malformed_lines"`
	UnknownEntityRefs  int `json:"unknown_entity_refs"`
	DuplicateFinalizes int `json:"duplicate_finalizes"`
	IgnoredEvents      int `json:"ignored_events"`
}

// StageKey identifies a stage attempt.
type StageKey struct {
	ID      int `json:"id"`
	Attempt int `json:"attempt"`
}

// StageMetrics holds the per-stage aggregates. Ratio fields are pointers:
// nil means the server could not define the value (for example a skew
// ratio over an empty stage).
type StageMetrics struct {
	Key        StageKey `json:"key"`
	Name       string   `json:"name,omitempty"`
	JobID      int      `json:"job_id"`
	Status     string   `json:"status"`
	DurationMs int64    `json:"duration_ms"`

	TaskCount   int `json:"task_count"`
	FailedTasks int `json:"failed_tasks"`
	KilledTasks int `json:"killed_tasks"`

	MinTaskMs    int64   `json:"min_task_ms"`
	MaxTaskMs    int64   `json:"max_task_ms"`
	MeanTaskMs   float64 `json:"mean_task_ms"`
	MedianTaskMs float64 `json:"median_task_ms"`
	P90TaskMs    float64 `json:"p90_task_ms"`

	SkewRatio        *float64 `json:"skew_ratio"`
	GCRatio          *float64 `json:"gc_ratio"`
	LocalityFraction *float64 `json:"locality_fraction"`

	ShuffleReadBytes  int64 `json:"shuffle_read_bytes"`
	ShuffleWriteBytes int64 `json:"shuffle_write_bytes"`
	SpillBytes        int64 `json:"spill_bytes"`
	InputBytes        int64 `json:"input_bytes"`
	OutputBytes       int64 `json:"output_bytes"`
}

// ExecutorMetrics holds the per-executor aggregates.
type ExecutorMetrics struct {
	ID          string `json:"id"`
	Host        string `json:"host,omitempty"`
	Cores       int    `json:"cores"`
	TaskCount   int    `json:"task_count"`
	FailedTasks int    `json:"failed_tasks"`
	BusyTimeMs  int64  `json:"busy_time_ms"`
	LifetimeMs  int64  `json:"lifetime_ms"`

	Utilization *float64 `json:"utilization"`
	GCRatio     *float64 `json:"gc_ratio"`

	PeakTaskMemory int64 `json:"peak_task_memory"`
	MaxMemory      int64 `json:"max_memory"`
}

// AppMetrics holds the application-level aggregates.
type AppMetrics struct {
	DurationMs int64 `json:"duration_ms"`

	TotalTasks     int `json:"total_tasks"`
	SucceededTasks int `json:"succeeded_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	KilledTasks    int `json:"killed_tasks"`

	SuccessRate     *float64 `json:"success_rate"`
	GCRatio         *float64 `json:"gc_ratio"`
	MeanUtilization *float64 `json:"mean_utilization"`

	ExecutorCount     int   `json:"executor_count"`
	TotalShuffleRead  int64 `json:"total_shuffle_read"`
	TotalShuffleWrite int64 `json:"total_shuffle_write"`
	TotalSpillBytes   int64 `json:"total_spill_bytes"`
	TotalInputBytes   int64 `json:"total_input_bytes"`
	TotalOutputBytes  int64 `json:"total_output_bytes"`
	TotalGCTimeMs     int64 `json:"total_gc_time_ms"`
	TotalRunTimeMs    int64 `json:"total_run_time_ms"`
}

// Anomaly flags a detected performance problem.
type Anomaly struct {
	Kind     string             `json:"kind"`
	Severity string             `json:"severity"`
	Stage    *StageKey          `json:"stage,omitempty"`
	Summary  string             `json:"summary"`
	Evidence map[string]float64 `json:"evidence"`
}

// Recommendation is a tuning suggestion derived from the anomalies.
type Recommendation struct {
	Rule      string            `json:"rule"`
	Category  string            `json:"category"`
	Priority  string            `json:"priority"`
	Title     string            `json:"title"`
	Rationale string            `json:"rationale"`
	Params    map[string]string `json:"params,omitempty"`
}

// HistoryRecord is one persisted analysis from the history store.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	AppID     string    `json:"app_id"`
	AppName   string    `json:"app_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Result    *Result   `json:"result,omitempty"`
}

// ListResponse is the response of List.
type ListResponse struct {
	Analyses []AnalysisSummary `json:"analyses"`
	Count    int               `json:"count"`
}

// RecommendationsResponse is the response of Recommendations.
type RecommendationsResponse struct {
	AnalysisID      string           `json:"analysis_id"`
	Count           int              `json:"count"`
	Recommendations []Recommendation `json:"recommendations"`
}

// HistoryResponse is the response of History.
type HistoryResponse struct {
	Records []HistoryRecord `json:"records"`
	Count   int             `json:"count"`
}

// HealthResponse is the response of Health.
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Service map[string]any `json:"service"`
}
