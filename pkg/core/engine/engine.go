// Package engine 实现工作流调度核心：就绪集推进、重试退避、
// 暂停/恢复/取消以及重启恢复。
// 所有任务处理器必须幂等：队列投递语义为at-least-once，
// 重复投递通过StepExecution的幂等创建与状态检查吸收。
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/flow-engine/pkg/core/dag"
	"github.com/LENAX/flow-engine/pkg/core/executor"
	"github.com/LENAX/flow-engine/pkg/core/workflow"
	"github.com/LENAX/flow-engine/pkg/events"
	"github.com/LENAX/flow-engine/pkg/queue"
	"github.com/LENAX/flow-engine/pkg/storage"
)

// DefaultMaxRetries Step失败后的最大重试次数
const DefaultMaxRetries = 3

// Engine 工作流执行引擎（对外导出）
// 实现queue.JobHandler，是三个逻辑队列的唯一消费者
type Engine struct {
	repo         storage.Repository
	queue        queue.Queue
	bus          *events.Bus
	stepExecutor *executor.StepExecutor
	metrics      *Metrics
	maxRetries   int

	// execID -> *sync.Mutex，守护完成检查的读-判-写窗口
	completionLocks sync.Map
}

// NewEngine 创建工作流执行引擎实例（对外导出）
func NewEngine(repo storage.Repository, q queue.Queue, bus *events.Bus, stepExecutor *executor.StepExecutor, maxRetries int) *Engine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Engine{
		repo:         repo,
		queue:        q,
		bus:          bus,
		stepExecutor: stepExecutor,
		metrics:      &Metrics{},
		maxRetries:   maxRetries,
	}
}

// Metrics 获取引擎计数器（对外导出）
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// ========== 触发与生命周期操作 ==========

// TriggerWorkflow 触发一次工作流执行（对外导出）
// 创建pending状态的Execution并投递启动任务，立即返回，不等待执行
func (e *Engine) TriggerWorkflow(ctx context.Context, workflowID, tenantID string, input map[string]any) (*workflow.Execution, error) {
	wf, err := e.repo.GetWorkflow(ctx, workflowID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("获取Workflow定义失败: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("Workflow定义非法: %w", err)
	}

	exec := workflow.NewExecution(workflowID, tenantID, input)
	if err := e.repo.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("创建Execution失败: %w", err)
	}

	job := &queue.WorkflowStartJob{
		ExecutionID: exec.ID,
		WorkflowID:  workflowID,
		TenantID:    tenantID,
	}
	if err := e.queue.AddWorkflowStart(ctx, job); err != nil {
		return nil, fmt.Errorf("投递启动任务失败: %w", err)
	}

	log.Printf("🚀 [引擎] 已触发工作流: WorkflowID=%s, ExecutionID=%s, TenantID=%s",
		workflowID, exec.ID, tenantID)
	return exec, nil
}

// Pause 暂停运行中的Execution（对外导出）
// 只允许从running暂停；已投递未认领的任务被尽力移除，
// 正在执行的Step不会被打断，其结果会落库但不再推进下游
func (e *Engine) Pause(ctx context.Context, executionID, tenantID string) error {
	exec, err := e.repo.GetExecution(ctx, executionID, tenantID)
	if err != nil {
		return err
	}
	if exec.Status != workflow.ExecutionStatusRunning {
		return fmt.Errorf("execution %s 当前状态为 %s，不允许暂停", executionID, exec.Status)
	}

	now := time.Now()
	status := workflow.ExecutionStatusPaused
	if err := e.repo.UpdateExecution(ctx, executionID, tenantID, &storage.ExecutionPatch{
		Status:   &status,
		PausedAt: &now,
	}); err != nil {
		return fmt.Errorf("更新Execution状态失败: %w", err)
	}

	if err := e.queue.RemovePendingJobs(ctx, executionID); err != nil {
		log.Printf("⚠️ [引擎] 移除待处理任务失败: ExecutionID=%s, Error=%v", executionID, err)
	}

	e.bus.Publish(ctx, &events.Event{
		Type:        events.EventWorkflowPaused,
		ExecutionID: executionID,
		TenantID:    tenantID,
		WorkflowID:  exec.WorkflowID,
	})
	log.Printf("⏸️  [引擎] Execution已暂停: ExecutionID=%s", executionID)
	return nil
}

// Resume 恢复已暂停的Execution（对外导出）
// 只允许从paused恢复；根据已落库的Step结果重新计算就绪集并重新投递
func (e *Engine) Resume(ctx context.Context, executionID, tenantID string) error {
	exec, err := e.repo.GetExecution(ctx, executionID, tenantID)
	if err != nil {
		return err
	}
	if exec.Status != workflow.ExecutionStatusPaused {
		return fmt.Errorf("execution %s 当前状态为 %s，不允许恢复", executionID, exec.Status)
	}

	now := time.Now()
	status := workflow.ExecutionStatusRunning
	if err := e.repo.UpdateExecution(ctx, executionID, tenantID, &storage.ExecutionPatch{
		Status:    &status,
		ResumedAt: &now,
	}); err != nil {
		return fmt.Errorf("更新Execution状态失败: %w", err)
	}
	exec.Status = workflow.ExecutionStatusRunning

	e.bus.Publish(ctx, &events.Event{
		Type:        events.EventWorkflowResumed,
		ExecutionID: executionID,
		TenantID:    tenantID,
		WorkflowID:  exec.WorkflowID,
	})
	log.Printf("▶️  [引擎] Execution已恢复: ExecutionID=%s", executionID)

	return e.redispatch(ctx, exec)
}

// Cancel 取消Execution（对外导出）
// 终态的Execution不可取消；正在执行的Step不会被打断，
// 其迟到的结果会落库但不再推进下游
func (e *Engine) Cancel(ctx context.Context, executionID, tenantID string) error {
	exec, err := e.repo.GetExecution(ctx, executionID, tenantID)
	if err != nil {
		return err
	}
	if exec.IsTerminal() {
		return fmt.Errorf("execution %s 当前状态为 %s，已处于终态", executionID, exec.Status)
	}

	now := time.Now()
	status := workflow.ExecutionStatusCancelled
	if err := e.repo.UpdateExecution(ctx, executionID, tenantID, &storage.ExecutionPatch{
		Status:      &status,
		CancelledAt: &now,
	}); err != nil {
		return fmt.Errorf("更新Execution状态失败: %w", err)
	}

	if err := e.queue.RemovePendingJobs(ctx, executionID); err != nil {
		log.Printf("⚠️ [引擎] 移除待处理任务失败: ExecutionID=%s, Error=%v", executionID, err)
	}

	e.metrics.executionsCancelled.Add(1)
	e.bus.Publish(ctx, &events.Event{
		Type:        events.EventWorkflowCancelled,
		ExecutionID: executionID,
		TenantID:    tenantID,
		WorkflowID:  exec.WorkflowID,
	})
	log.Printf("🛑 [引擎] Execution已取消: ExecutionID=%s", executionID)
	return nil
}

// Restore 重启后恢复未完成的Execution（对外导出）
// pending的重新投递启动任务；running的按已落库进度重新计算就绪集。
// 崩溃时在途的Step可能被重复执行，由幂等机制吸收
func (e *Engine) Restore(ctx context.Context) error {
	pending, err := e.repo.ListExecutionsByStatus(ctx, workflow.ExecutionStatusPending)
	if err != nil {
		return fmt.Errorf("查询pending的Execution失败: %w", err)
	}
	for _, exec := range pending {
		job := &queue.WorkflowStartJob{
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			TenantID:    exec.TenantID,
		}
		if err := e.queue.AddWorkflowStart(ctx, job); err != nil {
			log.Printf("❌ [引擎恢复] 重新投递启动任务失败: ExecutionID=%s, Error=%v", exec.ID, err)
		}
	}

	running, err := e.repo.ListExecutionsByStatus(ctx, workflow.ExecutionStatusRunning)
	if err != nil {
		return fmt.Errorf("查询running的Execution失败: %w", err)
	}
	for _, exec := range running {
		if err := e.redispatch(ctx, exec); err != nil {
			log.Printf("❌ [引擎恢复] 重新调度失败: ExecutionID=%s, Error=%v", exec.ID, err)
		}
	}

	if len(pending) > 0 || len(running) > 0 {
		log.Printf("🔄 [引擎恢复] 已恢复Execution: pending=%d, running=%d", len(pending), len(running))
	}
	return nil
}

// redispatch 按已落库进度重新投递就绪Step（内部方法）
// Resume与重启恢复共用：已有running记录的Step走重试Topic重新驱动，
// 无记录的就绪Step走首次执行Topic
func (e *Engine) redispatch(ctx context.Context, exec *workflow.Execution) error {
	wf, err := e.repo.GetWorkflow(ctx, exec.WorkflowID, exec.TenantID)
	if err != nil {
		return fmt.Errorf("获取Workflow定义失败: %w", err)
	}
	graph, err := dag.Build(wf)
	if err != nil {
		return fmt.Errorf("构建依赖图失败: %w", err)
	}

	completed := completedSet(exec)
	for _, step := range wf.Steps {
		if completed[step.ID] {
			continue
		}
		ok, err := graph.DependenciesSatisfied(step.ID, completed)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		rec, err := e.repo.GetStepExecution(ctx, workflow.StepExecutionID(exec.ID, step.ID), exec.TenantID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			job := &queue.StepJob{ExecutionID: exec.ID, StepID: step.ID, TenantID: exec.TenantID}
			if err := e.queue.AddStepExecution(ctx, job, 0); err != nil {
				return fmt.Errorf("投递Step任务失败: %w", err)
			}
			e.metrics.stepsDispatched.Add(1)
		case err != nil:
			return err
		case rec.Status == workflow.StepStatusRunning:
			// 暂停或崩溃时在途的Step，原任务已丢失，走重试Topic重新驱动
			job := &queue.StepRetryJob{
				ExecutionID: exec.ID,
				StepID:      step.ID,
				TenantID:    exec.TenantID,
				Attempt:     rec.RetryCount,
			}
			if err := e.queue.AddStepRetry(ctx, job, 0); err != nil {
				return fmt.Errorf("投递Step重试任务失败: %w", err)
			}
		}
	}
	return nil
}

// ========== 队列任务处理器（queue.JobHandler实现） ==========

// HandleWorkflowStart 处理启动工作流任务（幂等）
// Execution不存在时吸收任务；pending转running并投递所有根Step；
// 重复投递时已是running，直接重新投递根Step，由幂等创建吸收
func (e *Engine) HandleWorkflowStart(ctx context.Context, job *queue.WorkflowStartJob) error {
	exec, err := e.repo.GetExecution(ctx, job.ExecutionID, job.TenantID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("⚠️ [引擎] 启动任务对应的Execution不存在，丢弃: ExecutionID=%s", job.ExecutionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("获取Execution失败: %w", err)
	}

	switch exec.Status {
	case workflow.ExecutionStatusPending:
		now := time.Now()
		status := workflow.ExecutionStatusRunning
		if err := e.repo.UpdateExecution(ctx, job.ExecutionID, job.TenantID, &storage.ExecutionPatch{
			Status:    &status,
			StartedAt: &now,
		}); err != nil {
			return fmt.Errorf("更新Execution状态失败: %w", err)
		}
		e.metrics.executionsStarted.Add(1)
		e.bus.Publish(ctx, &events.Event{
			Type:        events.EventWorkflowStarted,
			ExecutionID: job.ExecutionID,
			TenantID:    job.TenantID,
			WorkflowID:  job.WorkflowID,
		})
	case workflow.ExecutionStatusRunning:
		// 重复投递，根Step的重新投递由幂等创建吸收
	default:
		log.Printf("⚠️ [引擎] Execution状态为 %s，丢弃启动任务: ExecutionID=%s", exec.Status, job.ExecutionID)
		return nil
	}

	wf, err := e.repo.GetWorkflow(ctx, exec.WorkflowID, exec.TenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.failExecution(ctx, exec, fmt.Sprintf("workflow定义 %s 不存在", exec.WorkflowID))
	}
	if err != nil {
		return fmt.Errorf("获取Workflow定义失败: %w", err)
	}
	graph, err := dag.Build(wf)
	if err != nil {
		return e.failExecution(ctx, exec, fmt.Sprintf("构建依赖图失败: %v", err))
	}

	roots := graph.Roots()
	for _, rootID := range roots {
		stepJob := &queue.StepJob{
			ExecutionID: job.ExecutionID,
			StepID:      rootID,
			TenantID:    job.TenantID,
		}
		if err := e.queue.AddStepExecution(ctx, stepJob, 0); err != nil {
			return fmt.Errorf("投递根Step任务失败: %w", err)
		}
		e.metrics.stepsDispatched.Add(1)
	}

	log.Printf("✅ [引擎] 工作流已启动: ExecutionID=%s, 根Step数=%d", job.ExecutionID, len(roots))
	return nil
}

// HandleRunStep 处理Step首次执行任务（幂等）
// 通过StepExecution的幂等创建吸收重复投递：复合ID已存在即为重复，直接丢弃
func (e *Engine) HandleRunStep(ctx context.Context, job *queue.StepJob) error {
	exec, graph, step, err := e.loadDispatchContext(ctx, job.ExecutionID, job.StepID, job.TenantID)
	if err != nil || exec == nil {
		return err
	}

	// 前置完成性校验：投递时已就绪，这里兜底防御乱序投递
	ok, err := graph.DependenciesSatisfied(step.ID, completedSet(exec))
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("⚠️ [引擎] Step前置未完成，丢弃任务: ExecutionID=%s, StepID=%s", job.ExecutionID, job.StepID)
		return nil
	}

	rec := workflow.NewStepExecution(job.ExecutionID, job.StepID, job.TenantID)
	if err := e.repo.CreateStepExecution(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// 该Step已被认领过：在途的由原任务继续驱动，
			// 已终态的可能是上次投递在结果合并前出错被重投，重新驱动合并
			existing, getErr := e.repo.GetStepExecution(ctx, rec.ID, job.TenantID)
			if getErr != nil {
				return fmt.Errorf("获取StepExecution失败: %w", getErr)
			}
			if existing.Status == workflow.StepStatusRunning {
				log.Printf("🔄 [引擎] Step已有执行记录，丢弃重复任务: ExecutionID=%s, StepID=%s",
					job.ExecutionID, job.StepID)
				return nil
			}
			return e.redriveFinishedStep(ctx, exec, graph, step, existing)
		}
		return fmt.Errorf("创建StepExecution失败: %w", err)
	}

	return e.executeStep(ctx, exec, graph, step, rec)
}

// HandleRetryStep 处理Step重试任务（幂等）
// 重试不创建新记录，只重新驱动已有的running记录；
// 记录已完成或已失败时直接丢弃
func (e *Engine) HandleRetryStep(ctx context.Context, job *queue.StepRetryJob) error {
	exec, graph, step, err := e.loadDispatchContext(ctx, job.ExecutionID, job.StepID, job.TenantID)
	if err != nil || exec == nil {
		return err
	}

	rec, err := e.repo.GetStepExecution(ctx, workflow.StepExecutionID(job.ExecutionID, job.StepID), job.TenantID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("⚠️ [引擎] 重试任务对应的StepExecution不存在，丢弃: ExecutionID=%s, StepID=%s",
			job.ExecutionID, job.StepID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("获取StepExecution失败: %w", err)
	}
	if rec.Status != workflow.StepStatusRunning {
		// 上次投递可能在结果合并前出错被重投，重新驱动合并
		return e.redriveFinishedStep(ctx, exec, graph, step, rec)
	}

	log.Printf("🔄 [引擎] 开始重试Step: ExecutionID=%s, StepID=%s, Attempt=%d",
		job.ExecutionID, job.StepID, job.Attempt)
	e.metrics.stepsRetried.Add(1)
	return e.executeStep(ctx, exec, graph, step, rec)
}

// loadDispatchContext 加载Step调度所需的上下文（内部方法）
// 返回的exec为nil且err为nil时表示任务应被吸收丢弃。
// Execution不存在或已不在running状态 -> 丢弃；
// Workflow定义或Step定义缺失 -> Execution转failed后吸收
func (e *Engine) loadDispatchContext(ctx context.Context, executionID, stepID, tenantID string) (*workflow.Execution, *dag.Graph, *workflow.Step, error) {
	exec, err := e.repo.GetExecution(ctx, executionID, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("⚠️ [引擎] Step任务对应的Execution不存在，丢弃: ExecutionID=%s, StepID=%s", executionID, stepID)
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("获取Execution失败: %w", err)
	}
	if exec.Status != workflow.ExecutionStatusRunning {
		log.Printf("⚠️ [引擎] Execution状态为 %s，丢弃Step任务: ExecutionID=%s, StepID=%s",
			exec.Status, executionID, stepID)
		return nil, nil, nil, nil
	}

	wf, err := e.repo.GetWorkflow(ctx, exec.WorkflowID, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil, e.failExecution(ctx, exec, fmt.Sprintf("workflow定义 %s 不存在", exec.WorkflowID))
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("获取Workflow定义失败: %w", err)
	}

	step := wf.GetStep(stepID)
	if step == nil {
		return nil, nil, nil, e.failExecution(ctx, exec, fmt.Sprintf("step定义 %s 不存在", stepID))
	}

	graph, err := dag.Build(wf)
	if err != nil {
		return nil, nil, nil, e.failExecution(ctx, exec, fmt.Sprintf("构建依赖图失败: %v", err))
	}
	return exec, graph, step, nil
}

// ========== Step执行与结果处理 ==========

// executeStep 执行Step并处理结果（内部方法）
func (e *Engine) executeStep(ctx context.Context, exec *workflow.Execution, graph *dag.Graph, step *workflow.Step, rec *workflow.StepExecution) error {
	result, err := e.stepExecutor.Execute(ctx, step, workflow.NewContext(exec))
	if err != nil {
		return e.failStepAttempt(ctx, exec, step, rec, err)
	}
	return e.completeStep(ctx, exec, graph, step, result)
}

// completeStep 处理Step成功完成（内部方法）
// 结果先全量落到StepExecution记录（含variables），再合并进Execution：
// 合并出错被重投时，可从记录重新驱动合并而不重复执行操作
func (e *Engine) completeStep(ctx context.Context, exec *workflow.Execution, graph *dag.Graph, step *workflow.Step, result *executor.Result) error {
	now := time.Now()
	stepStatus := workflow.StepStatusCompleted
	if err := e.repo.UpdateStepExecution(ctx, workflow.StepExecutionID(exec.ID, step.ID), exec.TenantID, &storage.StepExecutionPatch{
		Status:      &stepStatus,
		Output:      result.Output,
		Variables:   result.Variables,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("更新StepExecution失败: %w", err)
	}
	e.metrics.stepsCompleted.Add(1)

	return e.finishStep(ctx, exec, graph, step, result, &now)
}

// finishStep 合并Step结果并推进下游（内部方法，可重入）
// 合并更新落库后重新读取Execution：
// 若此时已不在running（暂停/取消/失败竞态），结果保留但不再推进下游
func (e *Engine) finishStep(ctx context.Context, exec *workflow.Execution, graph *dag.Graph, step *workflow.Step, result *executor.Result, completedAt *time.Time) error {
	if err := e.repo.UpdateExecution(ctx, exec.ID, exec.TenantID, &storage.ExecutionPatch{
		Variables: result.Variables,
		StepResults: map[string]*workflow.StepResult{
			step.ID: {
				Status:      workflow.StepStatusCompleted,
				Output:      result.Output,
				CompletedAt: completedAt,
			},
		},
	}); err != nil {
		return fmt.Errorf("合并Step结果失败: %w", err)
	}

	fresh, err := e.repo.GetExecution(ctx, exec.ID, exec.TenantID)
	if err != nil {
		return fmt.Errorf("重新读取Execution失败: %w", err)
	}
	if fresh.Status != workflow.ExecutionStatusRunning {
		// 迟到的结果：已落库，但不推进下游
		e.metrics.lateResultsDropped.Add(1)
		log.Printf("⚠️ [引擎] Execution状态为 %s，Step结果已保留但不推进下游: ExecutionID=%s, StepID=%s",
			fresh.Status, exec.ID, step.ID)
		return nil
	}

	completed := completedSet(fresh)
	ready, err := graph.ReadyAfter(step.ID, completed)
	if err != nil {
		return err
	}
	for _, childID := range ready {
		// 已有记录说明并发完成的另一个前置已投递过
		_, err := e.repo.GetStepExecution(ctx, workflow.StepExecutionID(exec.ID, childID), exec.TenantID)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		job := &queue.StepJob{ExecutionID: exec.ID, StepID: childID, TenantID: exec.TenantID}
		if err := e.queue.AddStepExecution(ctx, job, 0); err != nil {
			return fmt.Errorf("投递下游Step任务失败: %w", err)
		}
		e.metrics.stepsDispatched.Add(1)
	}

	return e.checkCompletion(ctx, fresh, graph)
}

// redriveFinishedStep 重新驱动已终态Step的结果合并（内部方法，幂等）
// at-least-once投递下，上次处理可能在记录落库后、Execution合并前出错被重投；
// 直接丢弃会让合并永远无法落库，Execution卡死在running。
// 从记录中恢复结果重新合并，不重复执行操作本身
func (e *Engine) redriveFinishedStep(ctx context.Context, exec *workflow.Execution, graph *dag.Graph, step *workflow.Step, rec *workflow.StepExecution) error {
	switch rec.Status {
	case workflow.StepStatusCompleted:
		log.Printf("🔄 [引擎] Step已完成，重新驱动结果合并: ExecutionID=%s, StepID=%s", exec.ID, step.ID)
		completedAt := rec.CompletedAt
		if completedAt == nil {
			now := time.Now()
			completedAt = &now
		}
		result := &executor.Result{Output: rec.Output, Variables: rec.Variables}
		return e.finishStep(ctx, exec, graph, step, result, completedAt)
	case workflow.StepStatusFailed:
		log.Printf("🔄 [引擎] Step已失败，重新驱动失败合并: ExecutionID=%s, StepID=%s", exec.ID, step.ID)
		if err := e.repo.UpdateExecution(ctx, exec.ID, exec.TenantID, &storage.ExecutionPatch{
			StepResults: map[string]*workflow.StepResult{
				step.ID: {
					Status:      workflow.StepStatusFailed,
					Error:       rec.Error,
					CompletedAt: rec.CompletedAt,
				},
			},
		}); err != nil {
			return fmt.Errorf("合并Step结果失败: %w", err)
		}
		return e.failExecution(ctx, exec, fmt.Sprintf("step %s 失败: %s", step.ID, rec.Error))
	default:
		log.Printf("⚠️ [引擎] Step状态为 %s，丢弃任务: ExecutionID=%s, StepID=%s", rec.Status, exec.ID, step.ID)
		return nil
	}
}

// checkCompletion 完成检查（内部方法，幂等）
// 所有Step均完成时把Execution转为completed。
// 并发的最后两个Step可能同时走到这里，用进程内锁加状态复读保证事件只发一次
func (e *Engine) checkCompletion(ctx context.Context, exec *workflow.Execution, graph *dag.Graph) error {
	if len(completedSet(exec)) < graph.Size() {
		return nil
	}

	muAny, _ := e.completionLocks.LoadOrStore(exec.ID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	fresh, err := e.repo.GetExecution(ctx, exec.ID, exec.TenantID)
	if err != nil {
		return fmt.Errorf("重新读取Execution失败: %w", err)
	}
	if fresh.Status != workflow.ExecutionStatusRunning {
		return nil
	}

	now := time.Now()
	status := workflow.ExecutionStatusCompleted
	if err := e.repo.UpdateExecution(ctx, exec.ID, exec.TenantID, &storage.ExecutionPatch{
		Status:      &status,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("更新Execution状态失败: %w", err)
	}
	e.completionLocks.Delete(exec.ID)

	e.metrics.executionsCompleted.Add(1)
	e.bus.Publish(ctx, &events.Event{
		Type:        events.EventWorkflowCompleted,
		ExecutionID: exec.ID,
		TenantID:    exec.TenantID,
		WorkflowID:  exec.WorkflowID,
	})
	log.Printf("✅ [引擎] 工作流执行完成: ExecutionID=%s, Step数=%d", exec.ID, graph.Size())
	return nil
}

// failStepAttempt 处理Step执行失败（内部方法）
// 重试次数未耗尽时按指数退避投递重试任务（1s/2s/4s），记录保持running；
// 耗尽后Step转failed并令整个Execution失败
func (e *Engine) failStepAttempt(ctx context.Context, exec *workflow.Execution, step *workflow.Step, rec *workflow.StepExecution, stepErr error) error {
	errMsg := stepErr.Error()

	if rec.RetryCount < e.maxRetries {
		delay := time.Duration(1<<uint(rec.RetryCount)) * time.Second
		next := rec.RetryCount + 1
		now := time.Now()
		if err := e.repo.UpdateStepExecution(ctx, rec.ID, exec.TenantID, &storage.StepExecutionPatch{
			RetryCount:  &next,
			LastRetryAt: &now,
			Error:       &errMsg,
		}); err != nil {
			return fmt.Errorf("更新StepExecution重试计数失败: %w", err)
		}

		job := &queue.StepRetryJob{
			ExecutionID: exec.ID,
			StepID:      step.ID,
			TenantID:    exec.TenantID,
			Attempt:     next,
		}
		if err := e.queue.AddStepRetry(ctx, job, delay); err != nil {
			return fmt.Errorf("投递重试任务失败: %w", err)
		}
		log.Printf("🔄 [引擎] Step执行失败，已安排重试: ExecutionID=%s, StepID=%s, Attempt=%d/%d, 退避=%v",
			exec.ID, step.ID, next, e.maxRetries, delay)
		return nil
	}

	// 重试耗尽
	now := time.Now()
	stepStatus := workflow.StepStatusFailed
	if err := e.repo.UpdateStepExecution(ctx, rec.ID, exec.TenantID, &storage.StepExecutionPatch{
		Status:      &stepStatus,
		Error:       &errMsg,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("更新StepExecution失败: %w", err)
	}
	if err := e.repo.UpdateExecution(ctx, exec.ID, exec.TenantID, &storage.ExecutionPatch{
		StepResults: map[string]*workflow.StepResult{
			step.ID: {
				Status:      workflow.StepStatusFailed,
				Error:       errMsg,
				CompletedAt: &now,
			},
		},
	}); err != nil {
		return fmt.Errorf("合并Step结果失败: %w", err)
	}
	e.metrics.stepsFailed.Add(1)

	log.Printf("❌ [引擎] Step重试耗尽: ExecutionID=%s, StepID=%s, 重试次数=%d, 错误=%s",
		exec.ID, step.ID, e.maxRetries, errMsg)
	return e.failExecution(ctx, exec, fmt.Sprintf("step %s 失败: %s", step.ID, errMsg))
}

// failExecution 把Execution转为failed（内部方法，幂等）
// 已处于终态时不重复更新、不重复发事件
func (e *Engine) failExecution(ctx context.Context, exec *workflow.Execution, errMsg string) error {
	fresh, err := e.repo.GetExecution(ctx, exec.ID, exec.TenantID)
	if err != nil {
		return fmt.Errorf("重新读取Execution失败: %w", err)
	}
	if fresh.IsTerminal() {
		return nil
	}

	now := time.Now()
	status := workflow.ExecutionStatusFailed
	if err := e.repo.UpdateExecution(ctx, exec.ID, exec.TenantID, &storage.ExecutionPatch{
		Status:      &status,
		Error:       &errMsg,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("更新Execution状态失败: %w", err)
	}

	if err := e.queue.RemovePendingJobs(ctx, exec.ID); err != nil {
		log.Printf("⚠️ [引擎] 移除待处理任务失败: ExecutionID=%s, Error=%v", exec.ID, err)
	}

	e.metrics.executionsFailed.Add(1)
	e.bus.Publish(ctx, &events.Event{
		Type:        events.EventWorkflowFailed,
		ExecutionID: exec.ID,
		TenantID:    exec.TenantID,
		WorkflowID:  exec.WorkflowID,
		Error:       errMsg,
	})
	log.Printf("❌ [引擎] 工作流执行失败: ExecutionID=%s, 错误=%s", exec.ID, errMsg)
	return nil
}

// completedSet 从Execution提取已完成Step ID集合（内部方法）
func completedSet(exec *workflow.Execution) map[string]bool {
	completed := make(map[string]bool, len(exec.StepResults))
	for stepID, r := range exec.StepResults {
		if r.Status == workflow.StepStatusCompleted {
			completed[stepID] = true
		}
	}
	return completed
}
