package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/flow-engine/pkg/core/executor"
	"github.com/LENAX/flow-engine/pkg/core/workflow"
	"github.com/LENAX/flow-engine/pkg/events"
	"github.com/LENAX/flow-engine/pkg/queue"
	"github.com/LENAX/flow-engine/pkg/storage"
	"github.com/LENAX/flow-engine/pkg/storage/sqldb"
)

// mergeFailRepo 包装Repository，令前failures次结果合并失败，
// 模拟Step记录已落库但Execution合并未落库就被重投的现场
type mergeFailRepo struct {
	*sqldb.Repository
	failures int
}

func (r *mergeFailRepo) UpdateExecution(ctx context.Context, executionID, tenantID string, patch *storage.ExecutionPatch) error {
	if r.failures > 0 && patch.Status == nil && len(patch.StepResults) > 0 {
		r.failures--
		return fmt.Errorf("数据库繁忙")
	}
	return r.Repository.UpdateExecution(ctx, executionID, tenantID, patch)
}

// fakeQueue 进程内任务队列，按投递顺序记录任务，由测试手动驱动处理器。
// RemovePendingJobs与真实实现一致：移除指定Execution未被认领的任务
type fakeQueue struct {
	mu          sync.Mutex
	startJobs   []*queue.WorkflowStartJob
	stepJobs    []*queue.StepJob
	retryJobs   []*queue.StepRetryJob
	retryDelays []time.Duration
	removed     []string
}

func (q *fakeQueue) AddWorkflowStart(ctx context.Context, job *queue.WorkflowStartJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.startJobs = append(q.startJobs, job)
	return nil
}

func (q *fakeQueue) AddStepExecution(ctx context.Context, job *queue.StepJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stepJobs = append(q.stepJobs, job)
	return nil
}

func (q *fakeQueue) AddStepRetry(ctx context.Context, job *queue.StepRetryJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryJobs = append(q.retryJobs, job)
	q.retryDelays = append(q.retryDelays, delay)
	return nil
}

func (q *fakeQueue) RemovePendingJobs(ctx context.Context, executionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, executionID)

	steps := q.stepJobs[:0]
	for _, j := range q.stepJobs {
		if j.ExecutionID != executionID {
			steps = append(steps, j)
		}
	}
	q.stepJobs = steps

	retries := make([]*queue.StepRetryJob, 0, len(q.retryJobs))
	for _, j := range q.retryJobs {
		if j.ExecutionID != executionID {
			retries = append(retries, j)
		}
	}
	q.retryJobs = retries
	return nil
}

func (q *fakeQueue) Depths() map[string]int64 {
	return map[string]int64{}
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) popStart() *queue.WorkflowStartJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.startJobs) == 0 {
		return nil
	}
	job := q.startJobs[0]
	q.startJobs = q.startJobs[1:]
	return job
}

func (q *fakeQueue) popStep() *queue.StepJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.stepJobs) == 0 {
		return nil
	}
	job := q.stepJobs[0]
	q.stepJobs = q.stepJobs[1:]
	return job
}

func (q *fakeQueue) popRetry() *queue.StepRetryJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.retryJobs) == 0 {
		return nil
	}
	job := q.retryJobs[0]
	q.retryJobs = q.retryJobs[1:]
	return job
}

type testEnv struct {
	engine   *Engine
	queue    *fakeQueue
	repo     *sqldb.Repository
	registry *executor.OperationRegistry
	bus      *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "engine-test.db")
	repo, err := sqldb.NewRepositoryFromDSN("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	bus := events.NewBus(nil)
	t.Cleanup(func() { bus.Close() })

	registry := executor.NewOperationRegistry()
	q := &fakeQueue{}
	eng := NewEngine(repo, q, bus, executor.NewStepExecutor(registry, 0), DefaultMaxRetries)
	return &testEnv{engine: eng, queue: q, repo: repo, registry: registry, bus: bus}
}

// driveAll 循环处理队列中的全部任务直到排空
func (env *testEnv) driveAll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		if job := env.queue.popStart(); job != nil {
			require.NoError(t, env.engine.HandleWorkflowStart(ctx, job))
			continue
		}
		if job := env.queue.popStep(); job != nil {
			require.NoError(t, env.engine.HandleRunStep(ctx, job))
			continue
		}
		if job := env.queue.popRetry(); job != nil {
			require.NoError(t, env.engine.HandleRetryStep(ctx, job))
			continue
		}
		return
	}
}

// diamondWorkflow A -> (B, C) -> D
func diamondWorkflow(t *testing.T, env *testEnv, stepType string) *workflow.Workflow {
	t.Helper()
	wf := workflow.NewWorkflow("tenant-1", "钻石流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: stepType}).
		AddStep(&workflow.Step{ID: "B", Name: "B", Type: stepType, DependsOn: []string{"A"}}).
		AddStep(&workflow.Step{ID: "C", Name: "C", Type: stepType, DependsOn: []string{"A"}}).
		AddStep(&workflow.Step{ID: "D", Name: "D", Type: stepType, DependsOn: []string{"B", "C"}})
	require.NoError(t, env.repo.SaveWorkflow(context.Background(), wf))
	return wf
}

func registerOK(t *testing.T, env *testEnv) {
	t.Helper()
	require.NoError(t, env.registry.Register("ok", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*executor.Result, error) {
		return &executor.Result{
			Output:    map[string]any{"step": step.ID},
			Variables: map[string]any{"done_" + step.ID: true},
		}, nil
	}))
}

func TestEngine_DiamondCompletes(t *testing.T) {
	env := newTestEnv(t)
	registerOK(t, env)
	wf := diamondWorkflow(t, env, "ok")
	ctx := context.Background()

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", map[string]any{"seed": "1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusPending, exec.Status)

	env.driveAll(t)

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.Len(t, got.StepResults, 4)
	for _, stepID := range []string{"A", "B", "C", "D"} {
		require.Contains(t, got.StepResults, stepID)
		assert.Equal(t, workflow.StepStatusCompleted, got.StepResults[stepID].Status)
		assert.Equal(t, true, got.Variables["done_"+stepID])
	}

	snap := env.engine.Metrics().Snapshot()
	assert.Equal(t, int64(4), snap.StepsDispatched)
	assert.Equal(t, int64(4), snap.StepsCompleted)
	assert.Equal(t, int64(1), snap.ExecutionsCompleted)
	assert.Equal(t, int64(0), snap.StepsRetried)
}

func TestEngine_StepFailsAfterRetriesExhausted(t *testing.T) {
	env := newTestEnv(t)
	attempts := 0
	require.NoError(t, env.registry.Register("always-fail", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*executor.Result, error) {
		attempts++
		return nil, fmt.Errorf("下游服务不可用")
	}))

	wf := workflow.NewWorkflow("tenant-1", "必败流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "always-fail"}).
		AddStep(&workflow.Step{ID: "B", Name: "B", Type: "always-fail", DependsOn: []string{"A"}})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)

	env.driveAll(t)

	// 首次执行 + 3次重试
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, env.queue.retryDelays)

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusFailed, got.Status)
	assert.Contains(t, got.Error, "step A 失败")

	rec, err := env.repo.GetStepExecution(ctx, workflow.StepExecutionID(exec.ID, "A"), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusFailed, rec.Status)
	assert.Equal(t, 3, rec.RetryCount)

	// 失败时清理了该Execution的待处理任务
	assert.Contains(t, env.queue.removed, exec.ID)

	snap := env.engine.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.StepsRetried)
	assert.Equal(t, int64(1), snap.StepsFailed)
	assert.Equal(t, int64(1), snap.ExecutionsFailed)
}

func TestEngine_StepSucceedsAfterRetry(t *testing.T) {
	env := newTestEnv(t)
	attempts := 0
	require.NoError(t, env.registry.Register("flaky", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*executor.Result, error) {
		attempts++
		if attempts <= 2 {
			return nil, fmt.Errorf("临时故障")
		}
		return &executor.Result{Output: map[string]any{"attempts": attempts}}, nil
	}))

	wf := workflow.NewWorkflow("tenant-1", "抖动流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "flaky"})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)

	env.driveAll(t)

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)

	rec, err := env.repo.GetStepExecution(ctx, workflow.StepExecutionID(exec.ID, "A"), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.RetryCount)
	assert.Equal(t, int64(2), env.engine.Metrics().Snapshot().StepsRetried)
}

func TestEngine_PauseResumeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	registerOK(t, env)

	wf := workflow.NewWorkflow("tenant-1", "两步流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "ok"}).
		AddStep(&workflow.Step{ID: "B", Name: "B", Type: "ok", DependsOn: []string{"A"}})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)

	// 只处理启动任务和A，B留在队列中
	require.NoError(t, env.engine.HandleWorkflowStart(ctx, env.queue.popStart()))
	require.NoError(t, env.engine.HandleRunStep(ctx, env.queue.popStep()))

	require.NoError(t, env.engine.Pause(ctx, exec.ID, "tenant-1"))

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusPaused, got.Status)
	assert.NotNil(t, got.PausedAt)
	// A的结果已落库
	assert.Equal(t, workflow.StepStatusCompleted, got.StepResults["A"].Status)
	// B的任务已被移除
	assert.Nil(t, env.queue.popStep())

	// 暂停中不允许再次暂停，也不允许取消后的恢复以外的跃迁
	assert.Error(t, env.engine.Pause(ctx, exec.ID, "tenant-1"))

	require.NoError(t, env.engine.Resume(ctx, exec.ID, "tenant-1"))
	env.driveAll(t)

	got, err = env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.NotNil(t, got.ResumedAt)
	assert.Equal(t, workflow.StepStatusCompleted, got.StepResults["B"].Status)
}

func TestEngine_ResumeRequiresPaused(t *testing.T) {
	env := newTestEnv(t)
	registerOK(t, env)
	wf := diamondWorkflow(t, env, "ok")
	ctx := context.Background()

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)

	err = env.engine.Resume(ctx, exec.ID, "tenant-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "不允许恢复")
}

func TestEngine_CancelDropsPendingSteps(t *testing.T) {
	env := newTestEnv(t)
	registerOK(t, env)

	wf := workflow.NewWorkflow("tenant-1", "两步流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "ok"}).
		AddStep(&workflow.Step{ID: "B", Name: "B", Type: "ok", DependsOn: []string{"A"}})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)

	require.NoError(t, env.engine.HandleWorkflowStart(ctx, env.queue.popStart()))
	require.NoError(t, env.engine.HandleRunStep(ctx, env.queue.popStep()))

	require.NoError(t, env.engine.Cancel(ctx, exec.ID, "tenant-1"))

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	// 取消后到达的Step任务被丢弃，不创建执行记录
	env.driveAll(t)
	_, err = env.repo.GetStepExecution(ctx, workflow.StepExecutionID(exec.ID, "B"), "tenant-1")
	assert.Error(t, err)

	// 终态不可再取消
	assert.Error(t, env.engine.Cancel(ctx, exec.ID, "tenant-1"))
	assert.Equal(t, int64(1), env.engine.Metrics().Snapshot().ExecutionsCancelled)
}

func TestEngine_LateResultPreservedButNotAdvanced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 操作执行期间Execution被取消，结果迟到
	var execID string
	require.NoError(t, env.registry.Register("cancel-self", func(opCtx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*executor.Result, error) {
		require.NoError(t, env.engine.Cancel(ctx, execID, "tenant-1"))
		return &executor.Result{Output: map[string]any{"step": step.ID}}, nil
	}))

	wf := workflow.NewWorkflow("tenant-1", "迟到结果流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "cancel-self"}).
		AddStep(&workflow.Step{ID: "B", Name: "B", Type: "cancel-self", DependsOn: []string{"A"}})
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)
	execID = exec.ID

	env.driveAll(t)

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	// 迟到的结果保留，但Execution保持cancelled，下游未推进
	assert.Equal(t, workflow.ExecutionStatusCancelled, got.Status)
	assert.Equal(t, workflow.StepStatusCompleted, got.StepResults["A"].Status)
	assert.NotContains(t, got.StepResults, "B")
	assert.Equal(t, int64(1), env.engine.Metrics().Snapshot().LateResultsDropped)
}

func TestEngine_DuplicateDeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	executions := 0
	require.NoError(t, env.registry.Register("count", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*executor.Result, error) {
		executions++
		return &executor.Result{}, nil
	}))

	wf := workflow.NewWorkflow("tenant-1", "单步流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "count"})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)

	startJob := env.queue.popStart()
	require.NoError(t, env.engine.HandleWorkflowStart(ctx, startJob))
	// 重复投递启动任务：再次投递根Step，由幂等创建吸收
	require.NoError(t, env.engine.HandleWorkflowStart(ctx, startJob))

	stepJob := env.queue.popStep()
	require.NoError(t, env.engine.HandleRunStep(ctx, stepJob))
	// 重复投递Step任务
	require.NoError(t, env.engine.HandleRunStep(ctx, stepJob))
	env.driveAll(t)

	assert.Equal(t, 1, executions)

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, int64(1), env.engine.Metrics().Snapshot().ExecutionsCompleted)
}

func TestEngine_RedeliveryRedrivesLostMerge(t *testing.T) {
	env := newTestEnv(t)
	runs := 0
	require.NoError(t, env.registry.Register("count-vars", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*executor.Result, error) {
		runs++
		return &executor.Result{
			Output:    map[string]any{"step": step.ID},
			Variables: map[string]any{"from_" + step.ID: true},
		}, nil
	}))

	repo := &mergeFailRepo{Repository: env.repo, failures: 1}
	eng := NewEngine(repo, env.queue, env.bus, executor.NewStepExecutor(env.registry, 0), DefaultMaxRetries)

	wf := workflow.NewWorkflow("tenant-1", "合并重投流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "count-vars"}).
		AddStep(&workflow.Step{ID: "B", Name: "B", Type: "count-vars", DependsOn: []string{"A"}})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := eng.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)
	require.NoError(t, eng.HandleWorkflowStart(ctx, env.queue.popStart()))

	// 第一次投递：操作执行成功且记录落库，但Execution合并失败，任务会被重投
	stepJob := env.queue.popStep()
	require.Error(t, eng.HandleRunStep(ctx, stepJob))
	assert.Equal(t, 1, runs)

	rec, err := env.repo.GetStepExecution(ctx, workflow.StepExecutionID(exec.ID, "A"), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusCompleted, rec.Status)
	assert.Equal(t, true, rec.Variables["from_A"])

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.NotContains(t, got.StepResults, "A")

	// 重投：不重复执行操作，从记录重新驱动合并并推进下游
	require.NoError(t, eng.HandleRunStep(ctx, stepJob))
	assert.Equal(t, 1, runs)

	for {
		job := env.queue.popStep()
		if job == nil {
			break
		}
		require.NoError(t, eng.HandleRunStep(ctx, job))
	}
	assert.Equal(t, 2, runs)

	got, err = env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, true, got.Variables["from_A"])
	assert.Equal(t, true, got.Variables["from_B"])
	assert.Equal(t, workflow.StepStatusCompleted, got.StepResults["A"].Status)
}

func TestEngine_RetryRedeliveryRedrivesFailedMerge(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("always-fail", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*executor.Result, error) {
		return nil, fmt.Errorf("下游服务不可用")
	}))

	repo := &mergeFailRepo{Repository: env.repo, failures: 1}
	eng := NewEngine(repo, env.queue, env.bus, executor.NewStepExecutor(env.registry, 0), DefaultMaxRetries)

	wf := workflow.NewWorkflow("tenant-1", "失败合并重投流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "always-fail"})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	exec, err := eng.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)
	require.NoError(t, eng.HandleWorkflowStart(ctx, env.queue.popStart()))
	require.NoError(t, eng.HandleRunStep(ctx, env.queue.popStep()))

	// 驱动三次重试；最后一次重试耗尽后失败结果的合并出错，任务会被重投
	var lastRetry *queue.StepRetryJob
	for {
		job := env.queue.popRetry()
		if job == nil {
			break
		}
		lastRetry = job
		if job.Attempt == DefaultMaxRetries {
			require.Error(t, eng.HandleRetryStep(ctx, job))
		} else {
			require.NoError(t, eng.HandleRetryStep(ctx, job))
		}
	}
	require.NotNil(t, lastRetry)

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusRunning, got.Status)

	// 重投：记录已是failed，重新驱动失败合并并令Execution失败
	require.NoError(t, eng.HandleRetryStep(ctx, lastRetry))

	got, err = env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusFailed, got.Status)
	assert.Contains(t, got.Error, "step A 失败")
	assert.Equal(t, workflow.StepStatusFailed, got.StepResults["A"].Status)
}

func TestEngine_RestoreRedispatchesUnfinished(t *testing.T) {
	env := newTestEnv(t)
	registerOK(t, env)

	wf := workflow.NewWorkflow("tenant-1", "恢复流程", "")
	wf.AddStep(&workflow.Step{ID: "A", Name: "A", Type: "ok"}).
		AddStep(&workflow.Step{ID: "B", Name: "B", Type: "ok", DependsOn: []string{"A"}})
	ctx := context.Background()
	require.NoError(t, env.repo.SaveWorkflow(ctx, wf))

	// 模拟崩溃现场：A已完成且结果已合并，B的任务随进程一起丢失
	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)
	require.NoError(t, env.engine.HandleWorkflowStart(ctx, env.queue.popStart()))
	require.NoError(t, env.engine.HandleRunStep(ctx, env.queue.popStep()))
	env.queue.popStep() // 丢掉B的任务

	require.NoError(t, env.engine.Restore(ctx))
	env.driveAll(t)

	got, err := env.repo.GetExecution(ctx, exec.ID, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, workflow.StepStatusCompleted, got.StepResults["B"].Status)
}

func TestEngine_TriggerUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.TriggerWorkflow(context.Background(), "nonexistent", "tenant-1", nil)
	require.Error(t, err)
}

func TestEngine_LifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	registerOK(t, env)
	wf := diamondWorkflow(t, env, "ok")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := env.bus.Subscribe(ctx)
	require.NoError(t, err)

	exec, err := env.engine.TriggerWorkflow(ctx, wf.ID, "tenant-1", nil)
	require.NoError(t, err)
	env.driveAll(t)

	seen := make(map[events.EventType]bool)
	deadline := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case event := <-ch:
			assert.Equal(t, exec.ID, event.ExecutionID)
			seen[event.Type] = true
		case <-deadline:
			t.Fatalf("等待事件超时, 已收到: %v", seen)
		}
	}
	assert.True(t, seen[events.EventWorkflowStarted])
	assert.True(t, seen[events.EventWorkflowCompleted])
}
