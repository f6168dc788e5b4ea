package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// CronScheduler 定时触发器（对外导出）
// 按Cron表达式周期性触发Workflow执行，支持秒级精度。
// 调度与执行解耦：触发只是投递一次TriggerWorkflow，失败只记录日志
type CronScheduler struct {
	cron    *cron.Cron
	engine  *Engine
	entries map[string]cron.EntryID // workflowID -> cron.EntryID映射
	mu      sync.RWMutex
}

// NewCronScheduler 创建定时触发器实例（对外导出）
func NewCronScheduler(eng *Engine) *CronScheduler {
	return &CronScheduler{
		cron:    cron.New(cron.WithSeconds()), // 支持秒级精度
		engine:  eng,
		entries: make(map[string]cron.EntryID),
	}
}

// RegisterWorkflow 注册Workflow的定时触发（对外导出）
// input在每次触发时原样作为Execution输入
func (cs *CronScheduler) RegisterWorkflow(workflowID, tenantID, cronExpr string, input map[string]any) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.entries[workflowID]; exists {
		return fmt.Errorf("workflow %s 已注册定时触发", workflowID)
	}
	if cronExpr == "" {
		return fmt.Errorf("workflow %s 未设置Cron表达式", workflowID)
	}

	// 验证Cron表达式（使用Parser支持秒级精度）
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("workflow %s 的Cron表达式无效: %w", workflowID, err)
	}

	entryID, err := cs.cron.AddFunc(cronExpr, func() {
		cs.trigger(workflowID, tenantID, input)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	cs.entries[workflowID] = entryID

	log.Printf("✅ [Cron调度器] 已注册Workflow定时触发: WorkflowID=%s, CronExpr=%s", workflowID, cronExpr)
	return nil
}

// UnregisterWorkflow 取消Workflow的定时触发（对外导出）
func (cs *CronScheduler) UnregisterWorkflow(workflowID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[workflowID]
	if !exists {
		return fmt.Errorf("workflow %s 未注册定时触发", workflowID)
	}
	cs.cron.Remove(entryID)
	delete(cs.entries, workflowID)

	log.Printf("✅ [Cron调度器] 已取消Workflow定时触发: WorkflowID=%s", workflowID)
	return nil
}

// trigger 触发一次Workflow执行（内部方法）
func (cs *CronScheduler) trigger(workflowID, tenantID string, input map[string]any) {
	log.Printf("🕐 [Cron调度器] 定时触发Workflow: WorkflowID=%s, TenantID=%s", workflowID, tenantID)

	exec, err := cs.engine.TriggerWorkflow(context.Background(), workflowID, tenantID, input)
	if err != nil {
		log.Printf("❌ [Cron调度器] 触发Workflow失败: WorkflowID=%s, Error=%v", workflowID, err)
		return
	}
	log.Printf("✅ [Cron调度器] Workflow已触发: WorkflowID=%s, ExecutionID=%s", workflowID, exec.ID)
}

// Start 启动定时触发器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	log.Println("✅ [Cron调度器] 已启动")
}

// Stop 停止定时触发器（对外导出）
func (cs *CronScheduler) Stop() {
	cs.cron.Stop()
	log.Println("✅ [Cron调度器] 已停止")
}

// RegisteredWorkflows 列出已注册定时触发的Workflow ID（对外导出）
func (cs *CronScheduler) RegisteredWorkflows() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	ids := make([]string, 0, len(cs.entries))
	for workflowID := range cs.entries {
		ids = append(ids, workflowID)
	}
	return ids
}
