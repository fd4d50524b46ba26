package model

import (
	"github.com/ashita-ai/hibana/internal/eventlog"
)

// builder applies decoded events to a model under construction. It is not
// safe for concurrent use; Parse serializes application even when decoding
// runs in parallel.
type builder struct {
	m *Model

	// stageJob maps stage id to owning job id, populated from job-start
	// events. Stage attempts inherit the mapping at creation time.
	stageJob map[int]int

	recognized int
}

func newBuilder() *builder {
	return &builder{
		m:        newModel(),
		stageJob: make(map[int]int),
	}
}

// apply folds one event into the model. Unknown entity references and
// duplicate finalizes are absorbed as diagnostics, never errors.
func (b *builder) apply(ev eventlog.Event) {
	b.recognized++

	switch e := ev.(type) {
	case eventlog.LogStart:
		b.m.App.SparkVersion = e.SparkVersion
	case eventlog.ApplicationStart:
		b.applyApplicationStart(e)
	case eventlog.ApplicationEnd:
		b.applyApplicationEnd(e)
	case eventlog.EnvironmentUpdate:
		b.m.SparkProperties = e.SparkProperties
		b.m.HadoopProperties = e.HadoopProperties
	case eventlog.JobStart:
		b.applyJobStart(e)
	case eventlog.JobEnd:
		b.applyJobEnd(e)
	case eventlog.StageSubmitted:
		b.applyStageSubmitted(e)
	case eventlog.StageCompleted:
		b.applyStageCompleted(e)
	case eventlog.TaskStart:
		b.applyTaskStart(e)
	case eventlog.TaskEnd:
		b.applyTaskEnd(e)
	case eventlog.ExecutorAdded:
		b.applyExecutorAdded(e)
	case eventlog.ExecutorRemoved:
		b.applyExecutorRemoved(e)
	case eventlog.BlockManagerAdded:
		b.applyBlockManagerAdded(e)
	case eventlog.Ignored:
		b.m.Diags.IgnoredEvents++
	}
}

func (b *builder) applyApplicationStart(e eventlog.ApplicationStart) {
	b.m.App.ID = e.AppID
	b.m.App.Name = e.AppName
	b.m.App.User = e.User
	b.m.App.StartTime = e.Timestamp
	b.observe(e.Timestamp)
}

func (b *builder) applyApplicationEnd(e eventlog.ApplicationEnd) {
	if b.m.App.EndTime != 0 {
		b.m.Diags.DuplicateFinalizes++
		return
	}
	b.m.App.EndTime = e.Timestamp
	b.observe(e.Timestamp)
}

func (b *builder) applyJobStart(e eventlog.JobStart) {
	if _, ok := b.m.Jobs[e.JobID]; ok {
		b.m.Diags.DuplicateFinalizes++
		return
	}
	ids := append([]int(nil), e.StageIDs...)
	b.m.Jobs[e.JobID] = &Job{
		ID:             e.JobID,
		SubmissionTime: e.SubmissionTime,
		Status:         JobIncomplete,
		StageIDs:       ids,
		Properties:     e.Properties,
	}
	b.m.JobOrder = append(b.m.JobOrder, e.JobID)
	for _, sid := range ids {
		b.stageJob[sid] = e.JobID
	}
	b.observe(e.SubmissionTime)
}

func (b *builder) applyJobEnd(e eventlog.JobEnd) {
	j, ok := b.m.Jobs[e.JobID]
	if !ok {
		b.m.Diags.UnknownEntityRefs++
		return
	}
	if j.Status != JobIncomplete {
		b.m.Diags.DuplicateFinalizes++
		return
	}
	j.CompletionTime = e.CompletionTime
	if e.Result.Succeeded() {
		j.Status = JobSucceeded
	} else {
		j.Status = JobFailed
	}
	b.observe(e.CompletionTime)
}

func (b *builder) applyStageSubmitted(e eventlog.StageSubmitted) {
	key := StageKey{ID: e.Stage.StageID, Attempt: e.Stage.AttemptID}
	if _, ok := b.m.Stages[key]; ok {
		b.m.Diags.DuplicateFinalizes++
		return
	}
	jobID := -1
	if id, ok := b.stageJob[e.Stage.StageID]; ok {
		jobID = id
	}
	b.m.Stages[key] = &Stage{
		ID:             e.Stage.StageID,
		Attempt:        e.Stage.AttemptID,
		Name:           e.Stage.Name,
		JobID:          jobID,
		NumTasks:       e.Stage.NumTasks,
		SubmissionTime: e.Stage.SubmissionTime,
		Status:         StageIncomplete,
	}
	b.m.StageOrder = append(b.m.StageOrder, key)
	b.observe(e.Stage.SubmissionTime)
}

func (b *builder) applyStageCompleted(e eventlog.StageCompleted) {
	key := StageKey{ID: e.Stage.StageID, Attempt: e.Stage.AttemptID}
	s, ok := b.m.Stages[key]
	if !ok {
		b.m.Diags.UnknownEntityRefs++
		return
	}
	if s.Terminal() {
		b.m.Diags.DuplicateFinalizes++
		return
	}
	s.CompletionTime = e.Stage.CompletionTime
	if e.Stage.FailureReason != "" {
		s.Status = StageFailed
		s.FailureReason = e.Stage.FailureReason
	} else {
		s.Status = StageCompleted
	}
	// the completion event carries the authoritative task count
	if e.Stage.NumTasks > 0 {
		s.NumTasks = e.Stage.NumTasks
	}
	b.observe(e.Stage.CompletionTime)
}

func (b *builder) applyTaskStart(e eventlog.TaskStart) {
	if _, ok := b.m.Tasks[e.Task.TaskID]; ok {
		// already started, or the end event arrived first
		return
	}
	b.m.Tasks[e.Task.TaskID] = &Task{
		ID:         e.Task.TaskID,
		Stage:      StageKey{ID: e.StageID, Attempt: e.StageAttemptID},
		ExecutorID: e.Task.ExecutorID,
		Host:       e.Task.Host,
		Locality:   e.Task.Locality,
		LaunchTime: e.Task.LaunchTime,
		Status:     TaskIncomplete,
	}
	b.m.TaskOrder = append(b.m.TaskOrder, e.Task.TaskID)
	b.observe(e.Task.LaunchTime)
}

func (b *builder) applyTaskEnd(e eventlog.TaskEnd) {
	key := StageKey{ID: e.StageID, Attempt: e.StageAttemptID}
	t, ok := b.m.Tasks[e.Task.TaskID]
	if !ok {
		// end without a start still carries full task identity
		t = &Task{
			ID:     e.Task.TaskID,
			Stage:  key,
			Status: TaskIncomplete,
		}
		b.m.Tasks[e.Task.TaskID] = t
		b.m.TaskOrder = append(b.m.TaskOrder, e.Task.TaskID)
	}
	if t.Terminal() {
		b.m.Diags.DuplicateFinalizes++
		return
	}
	t.ExecutorID = e.Task.ExecutorID
	t.Host = e.Task.Host
	t.Locality = e.Task.Locality
	t.LaunchTime = e.Task.LaunchTime
	t.FinishTime = e.Task.FinishTime
	t.Status = taskStatus(e)
	if e.Metrics != nil {
		t.Metrics = flattenMetrics(e.Metrics)
	}
	b.observe(e.Task.FinishTime)

	b.accumulateStage(key, t)
	b.accumulateExecutor(t)
}

func taskStatus(e eventlog.TaskEnd) TaskStatus {
	switch {
	case e.Task.Killed:
		return TaskKilled
	case e.Reason.Reason == "Success" && !e.Task.Failed:
		return TaskSucceeded
	default:
		return TaskFailed
	}
}

func flattenMetrics(m *eventlog.TaskMetrics) TaskMetrics {
	return TaskMetrics{
		RunTime:           m.ExecutorRunTime,
		CPUTimeNs:         m.ExecutorCPUTime,
		GCTime:            m.JVMGCTime,
		DeserializeTime:   m.ExecutorDeserializeTime,
		SerializationTime: m.ResultSerializationTime,
		PeakMemory:        m.PeakExecutionMemory,
		MemorySpilled:     m.MemoryBytesSpilled,
		DiskSpilled:       m.DiskBytesSpilled,
		ShuffleReadBytes:  m.ShuffleRead.BytesRead(),
		ShuffleWriteBytes: m.ShuffleWrite.BytesWritten,
		FetchWaitTime:     m.ShuffleRead.FetchWaitTime,
		InputBytes:        m.Input.BytesRead,
		OutputBytes:       m.Output.BytesWritten,
	}
}

func (b *builder) accumulateStage(key StageKey, t *Task) {
	s, ok := b.m.Stages[key]
	if !ok {
		b.m.Diags.UnknownEntityRefs++
		return
	}
	switch t.Status {
	case TaskSucceeded:
		if s.NumTasks > 0 && s.CompletedTasks >= s.NumTasks {
			// completed count never exceeds the expected task count
			b.m.Diags.DuplicateFinalizes++
			return
		}
		s.CompletedTasks++
	case TaskFailed:
		s.FailedTasks++
	case TaskKilled:
		s.KilledTasks++
	}
	s.ShuffleReadBytes += t.Metrics.ShuffleReadBytes
	s.ShuffleWriteBytes += t.Metrics.ShuffleWriteBytes
	s.SpillBytes += t.Metrics.MemorySpilled + t.Metrics.DiskSpilled
	s.InputBytes += t.Metrics.InputBytes
	s.OutputBytes += t.Metrics.OutputBytes
}

func (b *builder) accumulateExecutor(t *Task) {
	if t.ExecutorID == "" {
		return
	}
	x, ok := b.m.Executors[t.ExecutorID]
	if !ok {
		// tasks can land before the executor-added event under
		// reordering; register the executor with what the task knows
		x = &Executor{ID: t.ExecutorID, Host: t.Host}
		b.m.Executors[t.ExecutorID] = x
		b.m.ExecutorOrder = append(b.m.ExecutorOrder, t.ExecutorID)
	}
	x.TaskCount++
	if t.Status == TaskFailed {
		x.FailedTasks++
	}
	x.BusyTime += t.DurationMs()
	x.GCTime += t.Metrics.GCTime
	if t.Metrics.PeakMemory > x.PeakTaskMemory {
		x.PeakTaskMemory = t.Metrics.PeakMemory
	}
}

func (b *builder) applyExecutorAdded(e eventlog.ExecutorAdded) {
	x, ok := b.m.Executors[e.ExecutorID]
	if !ok {
		x = &Executor{ID: e.ExecutorID}
		b.m.Executors[e.ExecutorID] = x
		b.m.ExecutorOrder = append(b.m.ExecutorOrder, e.ExecutorID)
	}
	x.Host = e.Info.Host
	x.Cores = e.Info.TotalCores
	x.AddedTime = e.Timestamp
	b.observe(e.Timestamp)
}

func (b *builder) applyExecutorRemoved(e eventlog.ExecutorRemoved) {
	x, ok := b.m.Executors[e.ExecutorID]
	if !ok {
		b.m.Diags.UnknownEntityRefs++
		return
	}
	if x.RemovedTime != 0 {
		b.m.Diags.DuplicateFinalizes++
		return
	}
	x.RemovedTime = e.Timestamp
	x.RemovedReason = e.Reason
	b.observe(e.Timestamp)
}

func (b *builder) applyBlockManagerAdded(e eventlog.BlockManagerAdded) {
	x, ok := b.m.Executors[e.BlockManager.ExecutorID]
	if !ok {
		x = &Executor{ID: e.BlockManager.ExecutorID, Host: e.BlockManager.Host}
		b.m.Executors[e.BlockManager.ExecutorID] = x
		b.m.ExecutorOrder = append(b.m.ExecutorOrder, e.BlockManager.ExecutorID)
	}
	if x.Host == "" {
		x.Host = e.BlockManager.Host
	}
	if e.MaxMemory > x.MaxMemory {
		x.MaxMemory = e.MaxMemory
	}
	b.observe(e.Timestamp)
}

func (b *builder) observe(ts int64) {
	if ts > b.m.LastEventTime {
		b.m.LastEventTime = ts
	}
}

// finalize closes the model at end-of-stream: entities still open get a
// synthetic non-terminal-but-final status, and the application status is
// derived from what was observed.
func (b *builder) finalize() *Model {
	m := b.m
	switch {
	case m.App.EndTime == 0:
		m.App.Status = AppUnknown
	default:
		m.App.Status = AppSucceeded
		for _, j := range m.Jobs {
			if j.Status == JobFailed {
				m.App.Status = AppFailed
				break
			}
		}
	}
	return m
}
