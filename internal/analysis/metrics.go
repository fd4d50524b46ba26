// Package analysis derives performance metrics, anomalies, and tuning
// recommendations from a reconstructed execution model. Everything here is
// a pure function of the model plus a config: no I/O, no clocks, no global
// state, so results are reproducible byte for byte.
package analysis

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/ashita-ai/hibana/internal/model"
)

// Ratio is a derived metric that may be undefined. Division by a zero
// denominator does not produce 0 or NaN here; it produces an undefined
// Ratio, and consumers decide how to present that. Marshals as a JSON
// number, or null when undefined.
type Ratio struct {
	value   float64
	defined bool
}

// Defined builds a defined Ratio.
func Defined(v float64) Ratio { return Ratio{value: v, defined: true} }

// Undefined is the zero Ratio.
var Undefined = Ratio{}

// Div divides num by den, undefined when den is zero.
func Div(num, den float64) Ratio {
	if den == 0 {
		return Undefined
	}
	return Defined(num / den)
}

// Value returns the ratio's value and whether it is defined.
func (r Ratio) Value() (float64, bool) { return r.value, r.defined }

// Or returns the value, or fallback when undefined.
func (r Ratio) Or(fallback float64) float64 {
	if !r.defined {
		return fallback
	}
	return r.value
}

// Defined reports whether the ratio carries a value.
func (r Ratio) Defined() bool { return r.defined }

// AtLeast reports whether the ratio is defined and >= threshold.
func (r Ratio) AtLeast(threshold float64) bool { return r.defined && r.value >= threshold }

// Below reports whether the ratio is defined and < threshold.
func (r Ratio) Below(threshold float64) bool { return r.defined && r.value < threshold }

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Defined(v)
	return nil
}

// StageMetrics is the derived per-stage-attempt summary. Task duration
// statistics cover successful tasks only; failed and killed attempts are
// counted but excluded from the distribution.
type StageMetrics struct {
	Key        model.StageKey    `json:"key"`
	Name       string            `json:"name,omitempty"`
	JobID      int               `json:"job_id"`
	Status     model.StageStatus `json:"status"`
	DurationMs int64             `json:"duration_ms"`

	TaskCount   int `json:"task_count"`
	FailedTasks int `json:"failed_tasks"`
	KilledTasks int `json:"killed_tasks"`

	MinTaskMs    int64   `json:"min_task_ms"`
	MaxTaskMs    int64   `json:"max_task_ms"`
	MeanTaskMs   float64 `json:"mean_task_ms"`
	MedianTaskMs float64 `json:"median_task_ms"`
	P90TaskMs    float64 `json:"p90_task_ms"`

	// SkewRatio is max over median task duration. Undefined when the stage
	// has no successful tasks or the median is zero.
	SkewRatio Ratio `json:"skew_ratio"`
	// GCRatio is total JVM GC time over total run time across the stage's
	// successful tasks.
	GCRatio Ratio `json:"gc_ratio"`
	// LocalityFraction is the share of successful tasks that ran
	// process-local or node-local.
	LocalityFraction Ratio `json:"locality_fraction"`

	ShuffleReadBytes  int64 `json:"shuffle_read_bytes"`
	ShuffleWriteBytes int64 `json:"shuffle_write_bytes"`
	SpillBytes        int64 `json:"spill_bytes"`
	InputBytes        int64 `json:"input_bytes"`
	OutputBytes       int64 `json:"output_bytes"`
}

// ExecutorMetrics is the derived per-executor summary. The driver never
// appears here.
type ExecutorMetrics struct {
	ID          string `json:"id"`
	Host        string `json:"host,omitempty"`
	Cores       int    `json:"cores"`
	TaskCount   int    `json:"task_count"`
	FailedTasks int    `json:"failed_tasks"`
	BusyTimeMs  int64  `json:"busy_time_ms"`
	LifetimeMs  int64  `json:"lifetime_ms"`

	// Utilization is busy time over lifetime times cores, clamped to
	// [0, 1]. Undefined when lifetime or core count is zero.
	Utilization Ratio `json:"utilization"`
	GCRatio     Ratio `json:"gc_ratio"`

	PeakTaskMemory int64 `json:"peak_task_memory"`
	MaxMemory      int64 `json:"max_memory"`
}

// AppMetrics is the application-level rollup.
type AppMetrics struct {
	DurationMs int64 `json:"duration_ms"`

	TotalTasks     int `json:"total_tasks"`
	SucceededTasks int `json:"succeeded_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	KilledTasks    int `json:"killed_tasks"`

	// SuccessRate is succeeded over terminal tasks. Undefined when the log
	// contains no terminal tasks.
	SuccessRate Ratio `json:"success_rate"`
	GCRatio     Ratio `json:"gc_ratio"`
	// MeanUtilization averages the defined executor utilizations.
	// Undefined when no executor has a defined utilization.
	MeanUtilization Ratio `json:"mean_utilization"`

	ExecutorCount     int   `json:"executor_count"`
	TotalShuffleRead  int64 `json:"total_shuffle_read"`
	TotalShuffleWrite int64 `json:"total_shuffle_write"`
	TotalSpillBytes   int64 `json:"total_spill_bytes"`
	TotalInputBytes   int64 `json:"total_input_bytes"`
	TotalOutputBytes  int64 `json:"total_output_bytes"`
	TotalGCTimeMs     int64 `json:"total_gc_time_ms"`
	TotalRunTimeMs    int64 `json:"total_run_time_ms"`
}

// localTask reports whether the task ran close to its data.
func localTask(t *model.Task) bool {
	return t.Locality == "PROCESS_LOCAL" || t.Locality == "NODE_LOCAL"
}

// computeStageMetrics derives the summary for one stage attempt.
func computeStageMetrics(m *model.Model, s *model.Stage) StageMetrics {
	sm := StageMetrics{
		Key:               s.Key(),
		Name:              s.Name,
		JobID:             s.JobID,
		Status:            s.Status,
		FailedTasks:       s.FailedTasks,
		KilledTasks:       s.KilledTasks,
		ShuffleReadBytes:  s.ShuffleReadBytes,
		ShuffleWriteBytes: s.ShuffleWriteBytes,
		SpillBytes:        s.SpillBytes,
		InputBytes:        s.InputBytes,
		OutputBytes:       s.OutputBytes,
	}
	if s.SubmissionTime > 0 && s.CompletionTime > 0 {
		sm.DurationMs = s.CompletionTime - s.SubmissionTime
	}

	var (
		durations         []float64
		totalGC, totalRun int64
		local             int
	)
	for _, t := range m.TasksForStage(s.Key()) {
		if t.Status != model.TaskSucceeded {
			continue
		}
		durations = append(durations, float64(t.DurationMs()))
		totalGC += t.Metrics.GCTime
		totalRun += t.Metrics.RunTime
		if localTask(t) {
			local++
		}
	}
	sm.TaskCount = len(durations)
	if len(durations) == 0 {
		return sm
	}

	sort.Float64s(durations)
	sm.MinTaskMs = int64(durations[0])
	sm.MaxTaskMs = int64(durations[len(durations)-1])
	sm.MeanTaskMs = mean(durations)
	sm.MedianTaskMs = percentile(durations, 0.50)
	sm.P90TaskMs = percentile(durations, 0.90)
	sm.SkewRatio = Div(float64(sm.MaxTaskMs), sm.MedianTaskMs)
	sm.GCRatio = Div(float64(totalGC), float64(totalRun))
	sm.LocalityFraction = Div(float64(local), float64(len(durations)))
	return sm
}

// computeExecutorMetrics derives the summary for one executor. The lifetime
// window closes at removal, application end, or the last observed event,
// whichever applies first.
func computeExecutorMetrics(m *model.Model, x *model.Executor) ExecutorMetrics {
	em := ExecutorMetrics{
		ID:             x.ID,
		Host:           x.Host,
		Cores:          x.Cores,
		TaskCount:      x.TaskCount,
		FailedTasks:    x.FailedTasks,
		BusyTimeMs:     x.BusyTime,
		PeakTaskMemory: x.PeakTaskMemory,
		MaxMemory:      x.MaxMemory,
	}
	end := x.RemovedTime
	if end == 0 {
		end = m.App.EndTime
	}
	if end == 0 {
		end = m.LastEventTime
	}
	if x.AddedTime > 0 && end > x.AddedTime {
		em.LifetimeMs = end - x.AddedTime
	}
	if em.LifetimeMs > 0 && x.Cores > 0 {
		u := float64(x.BusyTime) / (float64(em.LifetimeMs) * float64(x.Cores))
		em.Utilization = Defined(math.Min(math.Max(u, 0), 1))
	}
	var gc, run int64
	for _, t := range m.TasksForExecutor(x.ID) {
		if t.Terminal() {
			gc += t.Metrics.GCTime
			run += t.Metrics.RunTime
		}
	}
	em.GCRatio = Div(float64(gc), float64(run))
	return em
}

// computeAppMetrics rolls the model up to the application level. Driver
// activity is excluded from executor counts and utilization.
func computeAppMetrics(m *model.Model, executors []ExecutorMetrics) AppMetrics {
	am := AppMetrics{DurationMs: m.App.DurationMs()}

	for _, id := range m.TaskOrder {
		t := m.Tasks[id]
		if !t.Terminal() {
			continue
		}
		am.TotalTasks++
		switch t.Status {
		case model.TaskSucceeded:
			am.SucceededTasks++
		case model.TaskFailed:
			am.FailedTasks++
		case model.TaskKilled:
			am.KilledTasks++
		}
		am.TotalShuffleRead += t.Metrics.ShuffleReadBytes
		am.TotalShuffleWrite += t.Metrics.ShuffleWriteBytes
		am.TotalSpillBytes += t.Metrics.MemorySpilled + t.Metrics.DiskSpilled
		am.TotalInputBytes += t.Metrics.InputBytes
		am.TotalOutputBytes += t.Metrics.OutputBytes
		am.TotalGCTimeMs += t.Metrics.GCTime
		am.TotalRunTimeMs += t.Metrics.RunTime
	}
	am.SuccessRate = Div(float64(am.SucceededTasks), float64(am.TotalTasks))
	am.GCRatio = Div(float64(am.TotalGCTimeMs), float64(am.TotalRunTimeMs))

	am.ExecutorCount = len(executors)
	var sum float64
	var defined int
	for _, em := range executors {
		if v, ok := em.Utilization.Value(); ok {
			sum += v
			defined++
		}
	}
	if defined > 0 {
		am.MeanUtilization = Defined(sum / float64(defined))
	}
	return am
}

func mean(sorted []float64) float64 {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// percentile interpolates linearly over a sorted sample. p is in [0, 1].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
