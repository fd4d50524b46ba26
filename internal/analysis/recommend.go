package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Category groups recommendations by the knob they touch.
type Category string

const (
	CategoryPartitioning Category = "partitioning"
	CategoryMemory       Category = "memory"
	CategoryShuffle      Category = "shuffle"
	CategoryGC           Category = "gc"
	CategoryResources    Category = "resources"
	CategoryReliability  Category = "reliability"
)

// Priority orders recommendations by expected impact.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Recommendation is one actionable tuning suggestion. Params carries the
// concrete settings to change, keyed by configuration property where one
// applies.
type Recommendation struct {
	Rule      string            `json:"rule"`
	Category  Category          `json:"category"`
	Priority  Priority          `json:"priority"`
	Title     string            `json:"title"`
	Rationale string            `json:"rationale"`
	Params    map[string]string `json:"params,omitempty"`
}

// ruleInput is everything a rule may consult. Rules are pure: same input,
// same output.
type ruleInput struct {
	cfg       SkewConfig
	props     map[string]string
	app       AppMetrics
	stages    []StageMetrics
	executors []ExecutorMetrics
	anomalies []Anomaly
}

type rule struct {
	name     string
	evaluate func(in ruleInput) []Recommendation
}

// rules is the full rule set. Order here does not matter; output order is
// fixed by sortRecommendations.
var rules = []rule{
	{name: "shuffle-partitions", evaluate: recommendShufflePartitions},
	{name: "executor-memory", evaluate: recommendExecutorMemory},
	{name: "gc-tuning", evaluate: recommendGCTuning},
	{name: "data-locality", evaluate: recommendLocality},
	{name: "spill-mitigation", evaluate: recommendSpillMitigation},
	{name: "shuffle-reduction", evaluate: recommendShuffleReduction},
	{name: "skew-mitigation", evaluate: recommendSkewMitigation},
	{name: "executor-balance", evaluate: recommendExecutorBalance},
	{name: "right-sizing", evaluate: recommendRightSizing},
	{name: "task-failures", evaluate: recommendTaskFailures},
}

// recommend runs every rule and returns the findings in deterministic
// order: priority, then category, then rule name, then title.
func recommend(in ruleInput) []Recommendation {
	var out []Recommendation
	for _, r := range rules {
		for _, rec := range r.evaluate(in) {
			rec.Rule = r.name
			out = append(out, rec)
		}
	}
	sortRecommendations(out)
	return out
}

func sortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Title < b.Title
	})
}

const (
	defaultShufflePartitions = 200
	targetPartitionBytes     = 128 << 20
	maxSuggestedPartitions   = 2000
)

// recommendShufflePartitions sizes spark.sql.shuffle.partitions from the
// observed shuffle volume at roughly 128MiB per partition.
func recommendShufflePartitions(in ruleInput) []Recommendation {
	shuffled := in.app.TotalShuffleRead
	if in.app.TotalShuffleWrite > shuffled {
		shuffled = in.app.TotalShuffleWrite
	}
	if shuffled == 0 {
		return nil
	}
	current := defaultShufflePartitions
	if v, ok := in.props["spark.sql.shuffle.partitions"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			current = n
		}
	}
	suggested := int(shuffled / targetPartitionBytes)
	if suggested < 1 {
		suggested = 1
	}
	if suggested > maxSuggestedPartitions {
		suggested = maxSuggestedPartitions
	}
	// only speak up when the current setting is off by 2x or more
	if suggested >= current/2 && suggested <= current*2 {
		return nil
	}
	return []Recommendation{{
		Category: CategoryShuffle,
		Priority: PriorityMedium,
		Title:    fmt.Sprintf("set spark.sql.shuffle.partitions to %d", suggested),
		Rationale: fmt.Sprintf("the job shuffled %s across %d partitions (~%s each); %d partitions targets ~128MiB per partition",
			formatBytes(shuffled), current, formatBytes(shuffled/int64(current)), suggested),
		Params: map[string]string{"spark.sql.shuffle.partitions": strconv.Itoa(suggested)},
	}}
}

// recommendExecutorMemory flags executors whose peak task memory pushes
// against the configured heap and suggests 1.5x the observed peak.
func recommendExecutorMemory(in ruleInput) []Recommendation {
	configured, ok := parseMemory(in.props["spark.executor.memory"])
	if !ok || configured == 0 {
		return nil
	}
	var peak int64
	for _, em := range in.executors {
		if em.PeakTaskMemory > peak {
			peak = em.PeakTaskMemory
		}
	}
	if peak == 0 || float64(peak) <= 0.8*float64(configured) {
		return nil
	}
	suggested := formatMemory(peak + peak/2)
	return []Recommendation{{
		Category: CategoryMemory,
		Priority: PriorityHigh,
		Title:    fmt.Sprintf("increase spark.executor.memory to %s", suggested),
		Rationale: fmt.Sprintf("peak task execution memory (%s) used over 80%% of the configured %s heap",
			formatBytes(peak), in.props["spark.executor.memory"]),
		Params: map[string]string{"spark.executor.memory": suggested},
	}}
}

func recommendGCTuning(in ruleInput) []Recommendation {
	ratio, ok := in.app.GCRatio.Value()
	if !ok || ratio < in.cfg.GCRatio {
		return nil
	}
	return []Recommendation{{
		Category: CategoryGC,
		Priority: PriorityHigh,
		Title:    "reduce GC pressure",
		Rationale: fmt.Sprintf("executors spent %.0f%% of run time in GC; increase executor memory, lower spark.memory.fraction, or switch to G1GC",
			ratio*100),
		Params: map[string]string{"spark.executor.extraJavaOptions": "-XX:+UseG1GC"},
	}}
}

func recommendLocality(in ruleInput) []Recommendation {
	var local, total int
	for _, sm := range in.stages {
		if v, ok := sm.LocalityFraction.Value(); ok {
			local += int(v * float64(sm.TaskCount))
			total += sm.TaskCount
		}
	}
	if total == 0 {
		return nil
	}
	frac := float64(local) / float64(total)
	if frac >= 0.8 {
		return nil
	}
	return []Recommendation{{
		Category: CategoryResources,
		Priority: PriorityLow,
		Title:    "improve data locality",
		Rationale: fmt.Sprintf("only %.0f%% of tasks ran process- or node-local; consider raising spark.locality.wait or co-locating executors with storage",
			frac*100),
		Params: map[string]string{"spark.locality.wait": "6s"},
	}}
}

func recommendSpillMitigation(in ruleInput) []Recommendation {
	if in.app.TotalSpillBytes == 0 {
		return nil
	}
	prio := PriorityMedium
	if in.app.TotalSpillBytes >= 1<<30 {
		prio = PriorityHigh
	}
	return []Recommendation{{
		Category: CategoryMemory,
		Priority: prio,
		Title:    "eliminate shuffle spill",
		Rationale: fmt.Sprintf("tasks spilled %s to memory or disk; increase executor memory or raise partition counts so working sets fit in memory",
			formatBytes(in.app.TotalSpillBytes)),
	}}
}

// recommendShuffleReduction turns each excessive-shuffle anomaly into a
// suggestion to cut the volume crossing the wire.
func recommendShuffleReduction(in ruleInput) []Recommendation {
	var out []Recommendation
	for _, a := range in.anomalies {
		if a.Kind != AnomalyExcessiveShuffle || a.Stage == nil {
			continue
		}
		prio := PriorityMedium
		if a.Severity == SeverityHigh {
			prio = PriorityHigh
		}
		out = append(out, Recommendation{
			Category: CategoryShuffle,
			Priority: prio,
			Title:    fmt.Sprintf("reduce shuffle volume in stage %d", a.Stage.ID),
			Rationale: a.Summary +
				"; broadcast the smaller side of the join, pre-aggregate before the wide operation, or filter earlier in the plan",
			Params: map[string]string{"spark.sql.autoBroadcastJoinThreshold": "100m"},
		})
	}
	return out
}

// recommendSkewMitigation turns each stage-skew anomaly into a concrete
// repartition or salting suggestion.
func recommendSkewMitigation(in ruleInput) []Recommendation {
	var out []Recommendation
	for _, a := range in.anomalies {
		if a.Kind != AnomalyStageSkew || a.Stage == nil {
			continue
		}
		prio := PriorityMedium
		if a.Severity == SeverityHigh {
			prio = PriorityHigh
		}
		out = append(out, Recommendation{
			Category: CategoryPartitioning,
			Priority: prio,
			Title:    fmt.Sprintf("rebalance data in stage %d", a.Stage.ID),
			Rationale: a.Summary +
				"; repartition on a higher-cardinality key, or salt the hot key before the wide operation",
		})
	}
	return out
}

func recommendExecutorBalance(in ruleInput) []Recommendation {
	for _, a := range in.anomalies {
		if a.Kind != AnomalyExecutorImbalance {
			continue
		}
		return []Recommendation{{
			Category:  CategoryPartitioning,
			Priority:  PriorityMedium,
			Title:     "even out work across executors",
			Rationale: a.Summary + "; enable speculative execution or repartition inputs so every executor gets comparable work",
			Params:    map[string]string{"spark.speculation": "true"},
		}}
	}
	return nil
}

// recommendRightSizing flags clusters that sat mostly idle.
func recommendRightSizing(in ruleInput) []Recommendation {
	u, ok := in.app.MeanUtilization.Value()
	if !ok || u >= 0.3 || in.app.ExecutorCount == 0 {
		return nil
	}
	return []Recommendation{{
		Category: CategoryResources,
		Priority: PriorityMedium,
		Title:    "reduce allocated executors or cores",
		Rationale: fmt.Sprintf("mean executor utilization was %.0f%% across %d executors; the job would run as fast on fewer resources, or enable dynamic allocation",
			u*100, in.app.ExecutorCount),
		Params: map[string]string{"spark.dynamicAllocation.enabled": "true"},
	}}
}

func recommendTaskFailures(in ruleInput) []Recommendation {
	if in.app.FailedTasks == 0 {
		return nil
	}
	prio := PriorityLow
	if rate, ok := in.app.SuccessRate.Value(); ok && rate < 0.95 {
		prio = PriorityHigh
	}
	return []Recommendation{{
		Category: CategoryReliability,
		Priority: prio,
		Title:    "investigate task failures",
		Rationale: fmt.Sprintf("%d of %d tasks failed; check executor logs for the dominant failure reason before tuning anything else",
			in.app.FailedTasks, in.app.TotalTasks),
	}}
}

// parseMemory parses a Spark memory string such as "4g", "512m", or a bare
// byte count.
func parseMemory(s string) (int64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "t"):
		mult, s = 1<<40, s[:len(s)-1]
	case strings.HasSuffix(s, "g"):
		mult, s = 1<<30, s[:len(s)-1]
	case strings.HasSuffix(s, "m"):
		mult, s = 1<<20, s[:len(s)-1]
	case strings.HasSuffix(s, "k"):
		mult, s = 1<<10, s[:len(s)-1]
	case strings.HasSuffix(s, "b"):
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n * mult, true
}

// formatMemory renders a byte count as the coarsest whole Spark memory
// unit, rounding up.
func formatMemory(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%dg", (b+1<<30-1)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%dm", (b+1<<20-1)/(1<<20))
	default:
		return fmt.Sprintf("%dk", (b+1<<10-1)/(1<<10))
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
