// Package model reconstructs a Spark application's execution model from its
// decoded event stream.
//
// Parse consumes events in log order and assembles the raw entity graph:
// one application, its jobs, stage attempts, tasks, and executors, plus the
// configuration snapshot and a diagnostics block. The builder records what
// the log directly says — derived metrics, anomaly detection, and
// recommendations live in internal/analysis.
package model

// AppStatus is the terminal state of the application.
type AppStatus string

const (
	AppSucceeded AppStatus = "succeeded"
	AppFailed    AppStatus = "failed"
	// AppUnknown means no application-end event was observed. This is a
	// normal condition for logs of still-running or crashed applications,
	// not an error.
	AppUnknown AppStatus = "unknown"
)

// JobStatus is the terminal state of a job.
type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	// JobIncomplete marks a job with no completion event at end-of-stream.
	JobIncomplete JobStatus = "incomplete"
)

// StageStatus is the terminal state of a stage attempt.
type StageStatus string

const (
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
	StageIncomplete StageStatus = "incomplete"
)

// TaskStatus is the terminal state of a task.
type TaskStatus string

const (
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
	TaskKilled     TaskStatus = "killed"
	TaskIncomplete TaskStatus = "incomplete"
)

// Application holds the application-level fields observed in the log.
// Timestamps are epoch milliseconds as Spark writes them; zero means the
// corresponding event was not observed.
type Application struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	User         string    `json:"user,omitempty"`
	SparkVersion string    `json:"spark_version,omitempty"`
	StartTime    int64     `json:"start_time"`
	EndTime      int64     `json:"end_time,omitempty"`
	Status       AppStatus `json:"status"`
}

// DurationMs is the observed wall-clock duration, or 0 when either endpoint
// is missing.
func (a Application) DurationMs() int64 {
	if a.StartTime == 0 || a.EndTime == 0 {
		return 0
	}
	return a.EndTime - a.StartTime
}

// Job is one Spark job: a set of stages submitted together.
type Job struct {
	ID             int               `json:"id"`
	SubmissionTime int64             `json:"submission_time"`
	CompletionTime int64             `json:"completion_time,omitempty"`
	Status         JobStatus         `json:"status"`
	StageIDs       []int             `json:"stage_ids"`
	Properties     map[string]string `json:"properties,omitempty"`
}

// StageKey identifies one stage attempt. Retried stages produce multiple
// attempts with independent task sets, so the attempt number is part of the
// identity.
type StageKey struct {
	ID      int `json:"id"`
	Attempt int `json:"attempt"`
}

// Stage is one stage attempt. Byte and task totals accumulate only from
// tasks that reached a terminal state within this attempt.
type Stage struct {
	ID             int         `json:"id"`
	Attempt        int         `json:"attempt"`
	Name           string      `json:"name,omitempty"`
	JobID          int         `json:"job_id"` // -1 when no job-start named this stage
	NumTasks       int         `json:"num_tasks"`
	SubmissionTime int64       `json:"submission_time"`
	CompletionTime int64       `json:"completion_time,omitempty"`
	Status         StageStatus `json:"status"`
	FailureReason  string      `json:"failure_reason,omitempty"`

	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	KilledTasks    int `json:"killed_tasks"`

	ShuffleReadBytes  int64 `json:"shuffle_read_bytes"`
	ShuffleWriteBytes int64 `json:"shuffle_write_bytes"`
	SpillBytes        int64 `json:"spill_bytes"`
	InputBytes        int64 `json:"input_bytes"`
	OutputBytes       int64 `json:"output_bytes"`
}

// Key returns the stage's identity.
func (s *Stage) Key() StageKey { return StageKey{ID: s.ID, Attempt: s.Attempt} }

// Terminal reports whether the attempt reached a terminal state.
func (s *Stage) Terminal() bool { return s.Status == StageCompleted || s.Status == StageFailed }

// TaskMetrics is the per-task metrics bundle, flattened from the wire shape
// to the fields the analysis consumes. All times are milliseconds except
// CPUTimeNs.
type TaskMetrics struct {
	RunTime           int64 `json:"run_time"`
	CPUTimeNs         int64 `json:"cpu_time_ns"`
	GCTime            int64 `json:"gc_time"`
	DeserializeTime   int64 `json:"deserialize_time"`
	SerializationTime int64 `json:"serialization_time"`
	PeakMemory        int64 `json:"peak_memory"`
	MemorySpilled     int64 `json:"memory_spilled"`
	DiskSpilled       int64 `json:"disk_spilled"`
	ShuffleReadBytes  int64 `json:"shuffle_read_bytes"`
	ShuffleWriteBytes int64 `json:"shuffle_write_bytes"`
	FetchWaitTime     int64 `json:"fetch_wait_time"`
	InputBytes        int64 `json:"input_bytes"`
	OutputBytes       int64 `json:"output_bytes"`
}

// Task is one task execution. Tasks are immutable once terminal: a second
// end event for the same id is a no-op.
type Task struct {
	ID         int64       `json:"id"`
	Stage      StageKey    `json:"stage"`
	ExecutorID string      `json:"executor_id"`
	Host       string      `json:"host,omitempty"`
	Locality   string      `json:"locality,omitempty"`
	LaunchTime int64       `json:"launch_time"`
	FinishTime int64       `json:"finish_time,omitempty"`
	Status     TaskStatus  `json:"status"`
	Metrics    TaskMetrics `json:"metrics"`
}

// DurationMs is the task wall-clock duration, or 0 when not terminal.
func (t *Task) DurationMs() int64 {
	if t.LaunchTime == 0 || t.FinishTime == 0 {
		return 0
	}
	return t.FinishTime - t.LaunchTime
}

// Terminal reports whether the task reached a terminal state.
func (t *Task) Terminal() bool {
	return t.Status == TaskSucceeded || t.Status == TaskFailed || t.Status == TaskKilled
}

// Executor is one worker process. BusyTime accumulates the wall-clock
// durations of the terminal tasks that ran on it; PeakTaskMemory is the
// highest peak-execution-memory sample across those tasks.
type Executor struct {
	ID            string `json:"id"`
	Host          string `json:"host,omitempty"`
	Cores         int    `json:"cores"`
	MaxMemory     int64  `json:"max_memory"`
	AddedTime     int64  `json:"added_time"`
	RemovedTime   int64  `json:"removed_time,omitempty"` // zero: never removed
	RemovedReason string `json:"removed_reason,omitempty"`

	TaskCount      int   `json:"task_count"`
	FailedTasks    int   `json:"failed_tasks"`
	BusyTime       int64 `json:"busy_time"`
	GCTime         int64 `json:"gc_time"`
	PeakTaskMemory int64 `json:"peak_task_memory"`
}

// DriverExecutorID is the executor id Spark assigns to the driver. The
// driver appears in the model but is excluded from executor-level
// utilization and imbalance math.
const DriverExecutorID = "driver"

// Diagnostics counts the non-fatal conditions absorbed while building the
// model. They surface on the result for observability and never interrupt
// processing.
type Diagnostics struct {
	// MalformedLines counts input lines that failed structural decoding.
	MalformedLines int `json:"malformed_lines"`
	// UnknownEntityRefs counts finalize or update events that referenced an
	// entity no start event introduced.
	UnknownEntityRefs int `json:"unknown_entity_refs"`
	// DuplicateFinalizes counts finalize events applied to already-terminal
	// entities; each was ignored.
	DuplicateFinalizes int `json:"duplicate_finalizes"`
	// IgnoredEvents counts structurally valid events of kinds outside the
	// analysis' interest.
	IgnoredEvents int `json:"ignored_events"`
}

// Model is the reconstructed execution model. Entity maps are keyed by the
// engine's native identifiers; the *Order slices preserve first-seen order
// for deterministic presentation.
type Model struct {
	App              Application       `json:"application"`
	SparkProperties  map[string]string `json:"spark_properties,omitempty"`
	HadoopProperties map[string]string `json:"hadoop_properties,omitempty"`

	Jobs     map[int]*Job `json:"jobs"`
	JobOrder []int        `json:"job_order"`

	Stages     map[StageKey]*Stage `json:"-"`
	StageOrder []StageKey          `json:"stage_order"`

	Tasks     map[int64]*Task `json:"tasks"`
	TaskOrder []int64         `json:"task_order"`

	Executors     map[string]*Executor `json:"executors"`
	ExecutorOrder []string             `json:"executor_order"`

	// LastEventTime is the highest timestamp observed anywhere in the
	// stream. Used to close the lifetime window of executors that were
	// never removed.
	LastEventTime int64 `json:"last_event_time"`

	Diags Diagnostics `json:"diagnostics"`
}

// StagesInOrder returns the stage attempts in first-seen order.
func (m *Model) StagesInOrder() []*Stage {
	out := make([]*Stage, 0, len(m.StageOrder))
	for _, k := range m.StageOrder {
		out = append(out, m.Stages[k])
	}
	return out
}

// TasksForStage returns the tasks of one stage attempt in first-seen order.
func (m *Model) TasksForStage(key StageKey) []*Task {
	var out []*Task
	for _, id := range m.TaskOrder {
		if t := m.Tasks[id]; t.Stage == key {
			out = append(out, t)
		}
	}
	return out
}

// TasksForExecutor returns the tasks that ran on one executor in
// first-seen order.
func (m *Model) TasksForExecutor(executorID string) []*Task {
	var out []*Task
	for _, id := range m.TaskOrder {
		if t := m.Tasks[id]; t.ExecutorID == executorID {
			out = append(out, t)
		}
	}
	return out
}

func newModel() *Model {
	return &Model{
		App:       Application{Status: AppUnknown},
		Jobs:      make(map[int]*Job),
		Stages:    make(map[StageKey]*Stage),
		Tasks:     make(map[int64]*Task),
		Executors: make(map[string]*Executor),
	}
}
