// Package eventlog decodes Spark event-log records.
//
// A Spark event log is a line-delimited stream of JSON objects, each tagged
// with an "Event" discriminator. The decoder maps every line to one variant
// of a closed Event set: the kinds the analysis consumes get their own typed
// struct, recognized-but-unused kinds decode to Ignored, and structurally
// broken lines are reported as malformed. Field names follow Spark's own
// event-log schema, spaces included.
package eventlog

// Type identifies the kind of a decoded event.
type Type string

const (
	TypeLogStart          Type = "SparkListenerLogStart"
	TypeApplicationStart  Type = "SparkListenerApplicationStart"
	TypeApplicationEnd    Type = "SparkListenerApplicationEnd"
	TypeEnvironmentUpdate Type = "SparkListenerEnvironmentUpdate"
	TypeJobStart          Type = "SparkListenerJobStart"
	TypeJobEnd            Type = "SparkListenerJobEnd"
	TypeStageSubmitted    Type = "SparkListenerStageSubmitted"
	TypeStageCompleted    Type = "SparkListenerStageCompleted"
	TypeTaskStart         Type = "SparkListenerTaskStart"
	TypeTaskEnd           Type = "SparkListenerTaskEnd"
	TypeExecutorAdded     Type = "SparkListenerExecutorAdded"
	TypeExecutorRemoved   Type = "SparkListenerExecutorRemoved"
	TypeBlockManagerAdded Type = "SparkListenerBlockManagerAdded"
)

// Event is one decoded event-log record. The set of implementations is
// closed: a consumer switching over all variants plus Ignored has handled
// every line the decoder can produce.
type Event interface {
	Kind() Type
}

// LogStart opens an event log and carries the Spark version.
type LogStart struct {
	SparkVersion string `json:"Spark Version"`
}

func (LogStart) Kind() Type { return TypeLogStart }

// ApplicationStart announces the application.
type ApplicationStart struct {
	AppID     string `json:"App ID"`
	AppName   string `json:"App Name"`
	Timestamp int64  `json:"Timestamp"`
	User      string `json:"User"`
}

func (ApplicationStart) Kind() Type { return TypeApplicationStart }

// ApplicationEnd closes the application.
type ApplicationEnd struct {
	Timestamp int64 `json:"Timestamp"`
}

func (ApplicationEnd) Kind() Type { return TypeApplicationEnd }

// EnvironmentUpdate carries the effective Spark and Hadoop configuration.
type EnvironmentUpdate struct {
	SparkProperties  map[string]string `json:"Spark Properties"`
	HadoopProperties map[string]string `json:"Hadoop Properties"`
}

func (EnvironmentUpdate) Kind() Type { return TypeEnvironmentUpdate }

// JobStart submits a job with the stages planned for it.
type JobStart struct {
	JobID          int               `json:"Job ID"`
	SubmissionTime int64             `json:"Submission Time"`
	StageIDs       []int             `json:"Stage IDs"`
	Properties     map[string]string `json:"Properties"`
}

func (JobStart) Kind() Type { return TypeJobStart }

// JobResult is the terminal outcome of a job. Spark writes "JobSucceeded"
// for success; anything else is a failure.
type JobResult struct {
	Result string `json:"Result"`
}

// Succeeded reports whether the job completed successfully.
func (r JobResult) Succeeded() bool { return r.Result == "JobSucceeded" }

// JobEnd completes a job.
type JobEnd struct {
	JobID          int       `json:"Job ID"`
	CompletionTime int64     `json:"Completion Time"`
	Result         JobResult `json:"Job Result"`
}

func (JobEnd) Kind() Type { return TypeJobEnd }

// StageInfo is the stage descriptor embedded in stage lifecycle events.
type StageInfo struct {
	StageID        int    `json:"Stage ID"`
	AttemptID      int    `json:"Stage Attempt ID"`
	Name           string `json:"Stage Name"`
	NumTasks       int    `json:"Number of Tasks"`
	SubmissionTime int64  `json:"Submission Time"`
	CompletionTime int64  `json:"Completion Time"`
	FailureReason  string `json:"Failure Reason"`
}

// StageSubmitted opens a stage attempt.
type StageSubmitted struct {
	Stage StageInfo `json:"Stage Info"`
}

func (StageSubmitted) Kind() Type { return TypeStageSubmitted }

// StageCompleted closes a stage attempt.
type StageCompleted struct {
	Stage StageInfo `json:"Stage Info"`
}

func (StageCompleted) Kind() Type { return TypeStageCompleted }

// TaskInfo is the task descriptor embedded in task lifecycle events.
type TaskInfo struct {
	TaskID     int64  `json:"Task ID"`
	Index      int    `json:"Index"`
	Attempt    int    `json:"Attempt"`
	LaunchTime int64  `json:"Launch Time"`
	FinishTime int64  `json:"Finish Time"`
	ExecutorID string `json:"Executor ID"`
	Host       string `json:"Host"`
	Locality   string `json:"Locality"`
	Failed     bool   `json:"Failed"`
	Killed     bool   `json:"Killed"`
}

// TaskStart launches a task inside a stage attempt.
type TaskStart struct {
	StageID        int      `json:"Stage ID"`
	StageAttemptID int      `json:"Stage Attempt ID"`
	Task           TaskInfo `json:"Task Info"`
}

func (TaskStart) Kind() Type { return TypeTaskStart }

// TaskEndReason explains how a task terminated. "Success" is the only
// success value; "TaskKilled" and the various failure reasons are terminal
// non-success outcomes.
type TaskEndReason struct {
	Reason string `json:"Reason"`
}

// ShuffleReadMetrics aggregates a task's shuffle fetch activity.
type ShuffleReadMetrics struct {
	RemoteBlocksFetched int64 `json:"Remote Blocks Fetched"`
	LocalBlocksFetched  int64 `json:"Local Blocks Fetched"`
	FetchWaitTime       int64 `json:"Fetch Wait Time"`
	RemoteBytesRead     int64 `json:"Remote Bytes Read"`
	LocalBytesRead      int64 `json:"Local Bytes Read"`
	TotalRecordsRead    int64 `json:"Total Records Read"`
}

// BytesRead is remote plus local shuffle bytes.
func (m ShuffleReadMetrics) BytesRead() int64 { return m.RemoteBytesRead + m.LocalBytesRead }

// ShuffleWriteMetrics aggregates a task's shuffle write activity.
type ShuffleWriteMetrics struct {
	BytesWritten   int64 `json:"Shuffle Bytes Written"`
	WriteTime      int64 `json:"Shuffle Write Time"`
	RecordsWritten int64 `json:"Shuffle Records Written"`
}

// InputMetrics aggregates a task's input reads.
type InputMetrics struct {
	BytesRead   int64 `json:"Bytes Read"`
	RecordsRead int64 `json:"Records Read"`
}

// OutputMetrics aggregates a task's output writes.
type OutputMetrics struct {
	BytesWritten   int64 `json:"Bytes Written"`
	RecordsWritten int64 `json:"Records Written"`
}

// TaskMetrics is the metrics bundle attached to a task-end event.
// Executor CPU time is in nanoseconds; the remaining times are milliseconds,
// matching Spark's wire format.
type TaskMetrics struct {
	ExecutorDeserializeTime int64               `json:"Executor Deserialize Time"`
	ExecutorRunTime         int64               `json:"Executor Run Time"`
	ExecutorCPUTime         int64               `json:"Executor CPU Time"`
	ResultSerializationTime int64               `json:"Result Serialization Time"`
	JVMGCTime               int64               `json:"JVM GC Time"`
	ResultSize              int64               `json:"Result Size"`
	PeakExecutionMemory     int64               `json:"Peak Execution Memory"`
	MemoryBytesSpilled      int64               `json:"Memory Bytes Spilled"`
	DiskBytesSpilled        int64               `json:"Disk Bytes Spilled"`
	ShuffleRead             ShuffleReadMetrics  `json:"Shuffle Read Metrics"`
	ShuffleWrite            ShuffleWriteMetrics `json:"Shuffle Write Metrics"`
	Input                   InputMetrics        `json:"Input Metrics"`
	Output                  OutputMetrics       `json:"Output Metrics"`
}

// TaskEnd completes a task. Metrics is nil when the task failed before
// producing a metrics bundle.
type TaskEnd struct {
	StageID        int           `json:"Stage ID"`
	StageAttemptID int           `json:"Stage Attempt ID"`
	TaskType       string        `json:"Task Type"`
	Reason         TaskEndReason `json:"Task End Reason"`
	Task           TaskInfo      `json:"Task Info"`
	Metrics        *TaskMetrics  `json:"Task Metrics"`
}

func (TaskEnd) Kind() Type { return TypeTaskEnd }

// ExecutorInfo is the executor descriptor embedded in executor-added events.
type ExecutorInfo struct {
	Host       string `json:"Host"`
	TotalCores int    `json:"Total Cores"`
	MaxMemory  int64  `json:"Maximum Memory"`
}

// ExecutorAdded registers a new executor.
type ExecutorAdded struct {
	Timestamp  int64        `json:"Timestamp"`
	ExecutorID string       `json:"Executor ID"`
	Info       ExecutorInfo `json:"Executor Info"`
}

func (ExecutorAdded) Kind() Type { return TypeExecutorAdded }

// ExecutorRemoved retires an executor.
type ExecutorRemoved struct {
	Timestamp  int64  `json:"Timestamp"`
	ExecutorID string `json:"Executor ID"`
	Reason     string `json:"Removed Reason"`
}

func (ExecutorRemoved) Kind() Type { return TypeExecutorRemoved }

// BlockManagerID identifies the block manager (and therefore executor) that
// a block-manager event concerns.
type BlockManagerID struct {
	ExecutorID string `json:"Executor ID"`
	Host       string `json:"Host"`
	Port       int    `json:"Port"`
}

// BlockManagerAdded carries the real memory allocation for an executor,
// which is more accurate than the configured value in ExecutorInfo.
type BlockManagerAdded struct {
	BlockManager BlockManagerID `json:"Block Manager ID"`
	MaxMemory    int64          `json:"Maximum Memory"`
	Timestamp    int64          `json:"Timestamp"`
}

func (BlockManagerAdded) Kind() Type { return TypeBlockManagerAdded }

// Ignored is a structurally valid event of a kind the analysis does not
// consume (SQL execution UI events, block updates, RDD lineage, and any
// listener type introduced after this decoder was written).
type Ignored struct {
	Type string
}

func (e Ignored) Kind() Type { return Type(e.Type) }
