package analysis

import (
	"fmt"
	"math"

	"github.com/ashita-ai/hibana/internal/model"
)

// AnomalyKind classifies a detected runtime pathology.
type AnomalyKind string

const (
	// AnomalyStageSkew flags a stage whose slowest task dominates the
	// median by more than the configured ratio.
	AnomalyStageSkew AnomalyKind = "stage_skew"
	// AnomalyExecutorImbalance flags uneven busy-time distribution across
	// executors.
	AnomalyExecutorImbalance AnomalyKind = "executor_imbalance"
	// AnomalyExcessiveSpill flags stages that spilled to memory or disk.
	AnomalyExcessiveSpill AnomalyKind = "excessive_spill"
	// AnomalyExcessiveShuffle flags stages moving more shuffle bytes than
	// the configured threshold.
	AnomalyExcessiveShuffle AnomalyKind = "excessive_shuffle"
	// AnomalyLongGC flags an application spending too much of its run time
	// in garbage collection.
	AnomalyLongGC AnomalyKind = "long_gc"
)

// Severity ranks an anomaly's impact.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one detected pathology with the numbers that triggered it.
type Anomaly struct {
	Kind     AnomalyKind     `json:"kind"`
	Severity Severity        `json:"severity"`
	Stage    *model.StageKey `json:"stage,omitempty"`
	Summary  string          `json:"summary"`
	// Evidence carries the measured values behind the finding, keyed by
	// metric name.
	Evidence map[string]float64 `json:"evidence"`
}

// SkewConfig holds the detection thresholds. The zero value is not usable;
// start from DefaultSkewConfig.
type SkewConfig struct {
	// SkewRatio is the minimum max/median task duration ratio that counts
	// as skew.
	SkewRatio float64 `json:"skew_ratio"`
	// MinTaskMs is an absolute floor on the gap between the slowest task
	// and the median: stages whose gap is smaller are never flagged,
	// whatever the ratio says.
	MinTaskMs int64 `json:"min_task_ms"`
	// MinTasks is the minimum successful task count for the ratio to be
	// statistically meaningful.
	MinTasks int `json:"min_tasks"`

	// ImbalanceCV is the minimum coefficient of variation of executor
	// busy time that counts as imbalance.
	ImbalanceCV float64 `json:"imbalance_cv"`
	// GCRatio is the application-level GC share that counts as excessive.
	GCRatio float64 `json:"gc_ratio"`
	// ShuffleBytes is the per-stage shuffle volume (read + write) that
	// counts as excessive.
	ShuffleBytes int64 `json:"shuffle_bytes"`
}

// DefaultSkewConfig returns the stock thresholds.
func DefaultSkewConfig() SkewConfig {
	return SkewConfig{
		SkewRatio:    5.0,
		MinTaskMs:    10_000,
		MinTasks:     10,
		ImbalanceCV:  0.5,
		GCRatio:      0.10,
		ShuffleBytes: 10 << 30,
	}
}

// detectAnomalies runs every detector and returns findings in a fixed
// order: stage anomalies in stage order, then executor imbalance, then GC.
func detectAnomalies(cfg SkewConfig, app AppMetrics, stages []StageMetrics, executors []ExecutorMetrics) []Anomaly {
	var out []Anomaly
	for i := range stages {
		if a, ok := detectStageSkew(cfg, &stages[i]); ok {
			out = append(out, a)
		}
		if a, ok := detectSpill(&stages[i]); ok {
			out = append(out, a)
		}
		if a, ok := detectShuffle(cfg, &stages[i]); ok {
			out = append(out, a)
		}
	}
	if a, ok := detectImbalance(cfg, executors); ok {
		out = append(out, a)
	}
	if a, ok := detectLongGC(cfg, app); ok {
		out = append(out, a)
	}
	return out
}

func detectStageSkew(cfg SkewConfig, sm *StageMetrics) (Anomaly, bool) {
	ratio, ok := sm.SkewRatio.Value()
	if !ok || sm.TaskCount < cfg.MinTasks || ratio < cfg.SkewRatio {
		return Anomaly{}, false
	}
	if float64(sm.MaxTaskMs)-sm.MedianTaskMs < float64(cfg.MinTaskMs) {
		return Anomaly{}, false
	}
	sev := SeverityMedium
	if ratio >= 2*cfg.SkewRatio {
		sev = SeverityHigh
	}
	key := sm.Key
	return Anomaly{
		Kind:     AnomalyStageSkew,
		Severity: sev,
		Stage:    &key,
		Summary: fmt.Sprintf("stage %d (attempt %d): slowest task took %.1fx the median (%dms vs %.0fms)",
			key.ID, key.Attempt, ratio, sm.MaxTaskMs, sm.MedianTaskMs),
		Evidence: map[string]float64{
			"skew_ratio":     ratio,
			"max_task_ms":    float64(sm.MaxTaskMs),
			"median_task_ms": sm.MedianTaskMs,
			"task_count":     float64(sm.TaskCount),
		},
	}, true
}

func detectSpill(sm *StageMetrics) (Anomaly, bool) {
	if sm.SpillBytes == 0 {
		return Anomaly{}, false
	}
	sev := SeverityLow
	if sm.SpillBytes >= 1<<30 {
		sev = SeverityHigh
	} else if sm.SpillBytes >= 128<<20 {
		sev = SeverityMedium
	}
	key := sm.Key
	return Anomaly{
		Kind:     AnomalyExcessiveSpill,
		Severity: sev,
		Stage:    &key,
		Summary: fmt.Sprintf("stage %d (attempt %d) spilled %d bytes to memory or disk",
			key.ID, key.Attempt, sm.SpillBytes),
		Evidence: map[string]float64{
			"spill_bytes": float64(sm.SpillBytes),
		},
	}, true
}

func detectShuffle(cfg SkewConfig, sm *StageMetrics) (Anomaly, bool) {
	total := sm.ShuffleReadBytes + sm.ShuffleWriteBytes
	if cfg.ShuffleBytes <= 0 || total < cfg.ShuffleBytes {
		return Anomaly{}, false
	}
	sev := SeverityMedium
	if total >= 2*cfg.ShuffleBytes {
		sev = SeverityHigh
	}
	key := sm.Key
	return Anomaly{
		Kind:     AnomalyExcessiveShuffle,
		Severity: sev,
		Stage:    &key,
		Summary: fmt.Sprintf("stage %d (attempt %d) shuffled %d bytes (%d read, %d written)",
			key.ID, key.Attempt, total, sm.ShuffleReadBytes, sm.ShuffleWriteBytes),
		Evidence: map[string]float64{
			"shuffle_bytes":       float64(total),
			"shuffle_read_bytes":  float64(sm.ShuffleReadBytes),
			"shuffle_write_bytes": float64(sm.ShuffleWriteBytes),
		},
	}, true
}

// detectImbalance measures the coefficient of variation of executor busy
// time. It needs at least two executors with work between them.
func detectImbalance(cfg SkewConfig, executors []ExecutorMetrics) (Anomaly, bool) {
	if len(executors) < 2 {
		return Anomaly{}, false
	}
	busy := make([]float64, 0, len(executors))
	var total float64
	for _, em := range executors {
		busy = append(busy, float64(em.BusyTimeMs))
		total += float64(em.BusyTimeMs)
	}
	if total == 0 {
		return Anomaly{}, false
	}
	m := total / float64(len(busy))
	var variance float64
	for _, v := range busy {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(busy))
	cv := math.Sqrt(variance) / m
	if cv < cfg.ImbalanceCV {
		return Anomaly{}, false
	}
	sev := SeverityMedium
	if cv >= 2*cfg.ImbalanceCV {
		sev = SeverityHigh
	}
	return Anomaly{
		Kind:     AnomalyExecutorImbalance,
		Severity: sev,
		Summary: fmt.Sprintf("busy time is unevenly distributed across %d executors (cv %.2f)",
			len(executors), cv),
		Evidence: map[string]float64{
			"cv":             cv,
			"mean_busy_ms":   m,
			"executor_count": float64(len(executors)),
		},
	}, true
}

func detectLongGC(cfg SkewConfig, app AppMetrics) (Anomaly, bool) {
	ratio, ok := app.GCRatio.Value()
	if !ok || ratio < cfg.GCRatio {
		return Anomaly{}, false
	}
	sev := SeverityMedium
	if ratio >= 2*cfg.GCRatio {
		sev = SeverityHigh
	}
	return Anomaly{
		Kind:     AnomalyLongGC,
		Severity: sev,
		Summary:  fmt.Sprintf("%.0f%% of executor run time was spent in GC", ratio*100),
		Evidence: map[string]float64{
			"gc_ratio":   ratio,
			"gc_time_ms": float64(app.TotalGCTimeMs),
		},
	}, true
}
