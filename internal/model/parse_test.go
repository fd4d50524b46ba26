package model

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLines(t *testing.T, lines []string, opts ...ParseOption) *Model {
	t.Helper()
	m, err := Parse(context.Background(), strings.NewReader(strings.Join(lines, "\n")), opts...)
	require.NoError(t, err)
	return m
}

func appStart(ts int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerApplicationStart","App Name":"etl","App ID":"application_1700000000000_0042","Timestamp":%d,"User":"svc-etl"}`, ts)
}

func appEnd(ts int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerApplicationEnd","Timestamp":%d}`, ts)
}

func executorAdded(id string, cores int, ts int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerExecutorAdded","Timestamp":%d,"Executor ID":%q,"Executor Info":{"Host":"worker-1","Total Cores":%d}}`, ts, id, cores)
}

func jobStart(id int, stageIDs string, ts int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerJobStart","Job ID":%d,"Submission Time":%d,"Stage IDs":[%s]}`, id, ts, stageIDs)
}

func jobEnd(id int, result string, ts int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerJobEnd","Job ID":%d,"Completion Time":%d,"Job Result":{"Result":%q}}`, id, ts, result)
}

func stageSubmitted(id, attempt, numTasks int, ts int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":%d,"Stage Attempt ID":%d,"Stage Name":"map at etl.scala:42","Number of Tasks":%d,"Submission Time":%d}}`, id, attempt, numTasks, ts)
}

func stageCompleted(id, attempt, numTasks int, ts int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerStageCompleted","Stage Info":{"Stage ID":%d,"Stage Attempt ID":%d,"Stage Name":"map at etl.scala:42","Number of Tasks":%d,"Submission Time":1000,"Completion Time":%d}}`, id, attempt, numTasks, ts)
}

func taskStart(stage, attempt int, taskID int64, executor string, launch int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerTaskStart","Stage ID":%d,"Stage Attempt ID":%d,"Task Info":{"Task ID":%d,"Index":0,"Attempt":0,"Launch Time":%d,"Executor ID":%q,"Host":"worker-1","Locality":"PROCESS_LOCAL"}}`, stage, attempt, taskID, launch, executor)
}

func taskEnd(stage, attempt int, taskID int64, executor string, launch, finish int64) string {
	return fmt.Sprintf(`{"Event":"SparkListenerTaskEnd","Stage ID":%d,"Stage Attempt ID":%d,"Task Type":"ResultTask","Task End Reason":{"Reason":"Success"},"Task Info":{"Task ID":%d,"Index":0,"Attempt":0,"Launch Time":%d,"Finish Time":%d,"Executor ID":%q,"Host":"worker-1","Locality":"PROCESS_LOCAL"},"Task Metrics":{"Executor Run Time":%d,"JVM GC Time":5,"Peak Execution Memory":1048576,"Shuffle Read Metrics":{"Remote Bytes Read":100,"Local Bytes Read":28},"Shuffle Write Metrics":{"Shuffle Bytes Written":64}}}`, stage, attempt, taskID, launch, finish, executor, finish-launch)
}

func smallAppLines() []string {
	return []string{
		`{"Event":"SparkListenerLogStart","Spark Version":"3.5.1"}`,
		appStart(1000),
		`{"Event":"SparkListenerEnvironmentUpdate","Spark Properties":{"spark.executor.memory":"4g","spark.sql.shuffle.partitions":"200"}}`,
		executorAdded("1", 4, 1100),
		jobStart(0, "0", 1200),
		stageSubmitted(0, 0, 2, 1300),
		taskStart(0, 0, 1, "1", 1400),
		taskStart(0, 0, 2, "1", 1400),
		taskEnd(0, 0, 1, "1", 1400, 2400),
		taskEnd(0, 0, 2, "1", 1400, 2600),
		stageCompleted(0, 0, 2, 2700),
		jobEnd(0, "JobSucceeded", 2800),
		appEnd(3000),
	}
}

func TestParseSmallApplication(t *testing.T) {
	m := parseLines(t, smallAppLines())

	assert.Equal(t, "application_1700000000000_0042", m.App.ID)
	assert.Equal(t, "etl", m.App.Name)
	assert.Equal(t, "svc-etl", m.App.User)
	assert.Equal(t, "3.5.1", m.App.SparkVersion)
	assert.Equal(t, AppSucceeded, m.App.Status)
	assert.Equal(t, int64(2000), m.App.DurationMs())
	assert.Equal(t, "4g", m.SparkProperties["spark.executor.memory"])

	require.Len(t, m.Jobs, 1)
	job := m.Jobs[0]
	assert.Equal(t, JobSucceeded, job.Status)
	assert.Equal(t, []int{0}, job.StageIDs)

	require.Len(t, m.Stages, 1)
	stage := m.Stages[StageKey{ID: 0, Attempt: 0}]
	require.NotNil(t, stage)
	assert.Equal(t, StageCompleted, stage.Status)
	assert.Equal(t, 0, stage.JobID)
	assert.Equal(t, 2, stage.NumTasks)
	assert.Equal(t, 2, stage.CompletedTasks)
	assert.Equal(t, int64(256), stage.ShuffleReadBytes)
	assert.Equal(t, int64(128), stage.ShuffleWriteBytes)

	require.Len(t, m.Tasks, 2)
	task := m.Tasks[1]
	assert.Equal(t, TaskSucceeded, task.Status)
	assert.Equal(t, int64(1000), task.DurationMs())
	assert.Equal(t, int64(1000), task.Metrics.RunTime)

	require.Len(t, m.Executors, 1)
	x := m.Executors["1"]
	assert.Equal(t, 4, x.Cores)
	assert.Equal(t, 2, x.TaskCount)
	assert.Equal(t, int64(2200), x.BusyTime)
	assert.Equal(t, int64(1048576), x.PeakTaskMemory)

	assert.Equal(t, int64(3000), m.LastEventTime)
	assert.Zero(t, m.Diags.MalformedLines)
	assert.Zero(t, m.Diags.UnknownEntityRefs)
	assert.Zero(t, m.Diags.DuplicateFinalizes)
}

func TestParseMalformedLinesAbsorbed(t *testing.T) {
	lines := smallAppLines()
	lines = append(lines[:3], append([]string{
		"this is not json",
		`{"Event":"SparkListenerTaskEnd","Task Info":"wrong shape"}`,
		`{"no":"discriminator"}`,
	}, lines[3:]...)...)

	m := parseLines(t, lines)
	assert.Equal(t, 3, m.Diags.MalformedLines)
	assert.Equal(t, AppSucceeded, m.App.Status)
	assert.Len(t, m.Tasks, 2)
}

func TestParseUnusableInput(t *testing.T) {
	for name, input := range map[string]string{
		"empty":        "",
		"blank lines":  "\n\n\n",
		"garbage only": "not json\nalso not json\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(context.Background(), strings.NewReader(input))
			assert.ErrorIs(t, err, ErrUnusableInput)
		})
	}
}

func TestParseDuplicateFinalizesIgnored(t *testing.T) {
	lines := smallAppLines()
	lines = append(lines,
		taskEnd(0, 0, 1, "1", 1400, 9999),
		stageCompleted(0, 0, 2, 9999),
		jobEnd(0, "JobFailed", 9999),
		appEnd(9999),
	)

	m := parseLines(t, lines)
	// first finalize wins everywhere
	assert.Equal(t, AppSucceeded, m.App.Status)
	assert.Equal(t, int64(3000), m.App.EndTime)
	assert.Equal(t, JobSucceeded, m.Jobs[0].Status)
	stage := m.Stages[StageKey{ID: 0, Attempt: 0}]
	assert.Equal(t, int64(2700), stage.CompletionTime)
	assert.Equal(t, 2, stage.CompletedTasks)
	assert.Equal(t, int64(2400), m.Tasks[1].FinishTime)
	assert.Equal(t, 4, m.Diags.DuplicateFinalizes)
}

func TestParseUnknownEntityRefs(t *testing.T) {
	m := parseLines(t, []string{
		appStart(1000),
		jobEnd(7, "JobSucceeded", 2000),
		stageCompleted(9, 0, 4, 2000),
		`{"Event":"SparkListenerExecutorRemoved","Timestamp":2000,"Executor ID":"99","Removed Reason":"lost"}`,
	})
	assert.Equal(t, 3, m.Diags.UnknownEntityRefs)
	assert.Empty(t, m.Jobs)
	assert.Empty(t, m.Stages)
}

func TestParseMissingApplicationEnd(t *testing.T) {
	lines := smallAppLines()
	m := parseLines(t, lines[:len(lines)-3]) // drop stage end, job end, app end

	assert.Equal(t, AppUnknown, m.App.Status)
	assert.Zero(t, m.App.DurationMs())
	assert.Equal(t, JobIncomplete, m.Jobs[0].Status)
	assert.Equal(t, StageIncomplete, m.Stages[StageKey{ID: 0, Attempt: 0}].Status)
}

func TestParseFailedJobFailsApplication(t *testing.T) {
	m := parseLines(t, []string{
		appStart(1000),
		jobStart(0, "0", 1200),
		jobEnd(0, "JobFailed", 2000),
		appEnd(3000),
	})
	assert.Equal(t, AppFailed, m.App.Status)
	assert.Equal(t, JobFailed, m.Jobs[0].Status)
}

func TestParseTaskEndBeforeStart(t *testing.T) {
	m := parseLines(t, []string{
		appStart(1000),
		stageSubmitted(0, 0, 1, 1100),
		taskEnd(0, 0, 5, "1", 1200, 1500),
		taskStart(0, 0, 5, "1", 1200),
		stageCompleted(0, 0, 1, 1600),
	})
	task := m.Tasks[5]
	require.NotNil(t, task)
	assert.Equal(t, TaskSucceeded, task.Status)
	assert.Equal(t, int64(300), task.DurationMs())
	assert.Equal(t, 1, m.Stages[StageKey{ID: 0, Attempt: 0}].CompletedTasks)
	assert.Zero(t, m.Diags.DuplicateFinalizes)
}

func TestParseStageAttemptsAreDistinct(t *testing.T) {
	m := parseLines(t, []string{
		appStart(1000),
		stageSubmitted(3, 0, 1, 1100),
		stageCompleted(3, 0, 1, 1200),
		stageSubmitted(3, 1, 1, 1300),
		taskEnd(3, 1, 10, "1", 1300, 1400),
		stageCompleted(3, 1, 1, 1500),
	})
	require.Len(t, m.Stages, 2)
	assert.Equal(t, 0, m.Stages[StageKey{ID: 3, Attempt: 0}].CompletedTasks)
	assert.Equal(t, 1, m.Stages[StageKey{ID: 3, Attempt: 1}].CompletedTasks)
	assert.Zero(t, m.Diags.DuplicateFinalizes)
}

func TestParseKilledAndFailedTasks(t *testing.T) {
	failed := `{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"ExceptionFailure"},"Task Info":{"Task ID":1,"Launch Time":1200,"Finish Time":1300,"Executor ID":"1","Failed":true}}`
	killed := `{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"TaskKilled"},"Task Info":{"Task ID":2,"Launch Time":1200,"Finish Time":1300,"Executor ID":"1","Killed":true}}`

	m := parseLines(t, []string{
		appStart(1000),
		stageSubmitted(0, 0, 3, 1100),
		failed,
		killed,
		taskEnd(0, 0, 3, "1", 1200, 1400),
		stageCompleted(0, 0, 3, 1500),
	})
	stage := m.Stages[StageKey{ID: 0, Attempt: 0}]
	assert.Equal(t, 1, stage.CompletedTasks)
	assert.Equal(t, 1, stage.FailedTasks)
	assert.Equal(t, 1, stage.KilledTasks)
	assert.Equal(t, TaskFailed, m.Tasks[1].Status)
	assert.Equal(t, TaskKilled, m.Tasks[2].Status)
	assert.Equal(t, 1, m.Executors["1"].FailedTasks)
}

func TestParseParallelMatchesSequential(t *testing.T) {
	lines := smallAppLines()
	// pad with enough tasks to span several batches
	for i := int64(100); i < 900; i++ {
		lines = append(lines, taskStart(0, 0, i, "1", 1400), taskEnd(0, 0, i, "1", 1400, 1400+i))
	}

	seq := parseLines(t, lines)
	par := parseLines(t, lines, WithParallelism(4), WithBatchSize(64))

	assert.Equal(t, seq.App, par.App)
	assert.Equal(t, seq.Diags, par.Diags)
	assert.Equal(t, seq.TaskOrder, par.TaskOrder)
	assert.Equal(t, seq.Stages[StageKey{ID: 0, Attempt: 0}], par.Stages[StageKey{ID: 0, Attempt: 0}])
	assert.Equal(t, seq.Executors["1"], par.Executors["1"])
}

func TestParseContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, strings.NewReader(strings.Join(smallAppLines(), "\n")), WithParallelism(2))
	assert.ErrorIs(t, err, context.Canceled)
}
