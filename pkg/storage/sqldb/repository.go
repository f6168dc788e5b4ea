package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
	"github.com/LENAX/flow-engine/pkg/storage"
	"github.com/LENAX/flow-engine/pkg/storage/dao"
)

// Repository Repository契约的sqlx实现（对外导出）
type Repository struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewRepository 基于已打开的连接创建Repository实例（对外导出）
func NewRepository(db *sqlx.DB, dialect Dialect) (*Repository, error) {
	repo := &Repository{db: db, dialect: dialect}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// NewRepositoryFromDSN 通过类型和DSN创建Repository实例（对外导出）
func NewRepositoryFromDSN(dbType, dsn string) (*Repository, error) {
	db, dialect, err := Open(dbType, dsn)
	if err != nil {
		return nil, err
	}
	return NewRepository(db, dialect)
}

// GetDB 获取底层数据库连接（对外导出）
func (r *Repository) GetDB() *sqlx.DB {
	return r.db
}

// Ping 检查存储连通性（对外导出）
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close 关闭数据库连接（对外导出）
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
// 键列和索引列统一VARCHAR：MySQL不允许TEXT列做主键或索引；
// SQLite/PostgreSQL对VARCHAR按TEXT处理，基准DDL三种方言通用
func (r *Repository) initSchema() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS workflow_definition (
			id VARCHAR(191) PRIMARY KEY,
			tenant_id VARCHAR(191) NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			create_time DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS step_definition (
			id VARCHAR(191) NOT NULL,
			workflow_id VARCHAR(191) NOT NULL,
			name TEXT,
			type TEXT NOT NULL,
			depends_on TEXT,
			config TEXT,
			timeout_seconds INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (workflow_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS execution (
			id VARCHAR(191) PRIMARY KEY,
			workflow_id VARCHAR(191) NOT NULL,
			tenant_id VARCHAR(191) NOT NULL,
			status VARCHAR(32) NOT NULL,
			input TEXT,
			variables TEXT,
			step_results TEXT,
			error_message TEXT,
			started_at DATETIME,
			paused_at DATETIME,
			resumed_at DATETIME,
			completed_at DATETIME,
			cancelled_at DATETIME,
			create_time DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS step_execution (
			id VARCHAR(191) PRIMARY KEY,
			execution_id VARCHAR(191) NOT NULL,
			step_id VARCHAR(191) NOT NULL,
			tenant_id VARCHAR(191) NOT NULL,
			status VARCHAR(32) NOT NULL,
			output TEXT,
			variables TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_retry_at DATETIME,
			started_at DATETIME,
			completed_at DATETIME,
			error_message TEXT
		)`,
	}
	for _, stmt := range tables {
		if _, err := r.db.Exec(r.dialect.CreateTableSQL(stmt)); err != nil {
			return fmt.Errorf("执行DDL失败: %w", err)
		}
	}

	indexes := []struct{ name, table, column string }{
		{"idx_workflow_definition_tenant", "workflow_definition", "tenant_id"},
		{"idx_step_definition_workflow", "step_definition", "workflow_id"},
		{"idx_execution_tenant", "execution", "tenant_id"},
		{"idx_execution_status", "execution", "status"},
		{"idx_step_execution_execution", "step_execution", "execution_id"},
	}
	for _, idx := range indexes {
		if _, err := r.db.Exec(r.dialect.CreateIndexSQL(idx.name, idx.table, idx.column)); err != nil {
			if isDuplicateIndexError(err) {
				continue
			}
			return fmt.Errorf("创建索引失败: %w", err)
		}
	}

	return nil
}

// ========== Workflow定义 ==========

// SaveWorkflow 保存Workflow定义及其Step（事务，幂等）
// Step定义全量替换：先删除旧记录再插入新记录
func (r *Repository) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	wfDAO := &dao.WorkflowDAO{
		ID:          wf.ID,
		TenantID:    wf.TenantID,
		Name:        wf.Name,
		Description: wf.Description,
		CreateTime:  wf.CreateTime,
	}
	upsert := r.dialect.UpsertSQL("workflow_definition",
		[]string{"id", "tenant_id", "name", "description", "create_time"},
		"id",
		[]string{"tenant_id", "name", "description", "create_time"},
	)
	if _, err := tx.NamedExecContext(ctx, upsert, wfDAO); err != nil {
		return fmt.Errorf("保存Workflow定义失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM step_definition WHERE workflow_id = ?`), wf.ID); err != nil {
		return fmt.Errorf("删除旧Step定义失败: %w", err)
	}

	insertStep := `
	INSERT INTO step_definition (id, workflow_id, name, type, depends_on, config, timeout_seconds, position)
	VALUES (:id, :workflow_id, :name, :type, :depends_on, :config, :timeout_seconds, :position)
	`
	for i, s := range wf.Steps {
		depsJSON, err := json.Marshal(s.DependsOn)
		if err != nil {
			return fmt.Errorf("序列化Step依赖失败: %w", err)
		}
		configJSON, err := json.Marshal(s.Config)
		if err != nil {
			return fmt.Errorf("序列化Step配置失败: %w", err)
		}
		stepDAO := &dao.StepDAO{
			ID:             s.ID,
			WorkflowID:     wf.ID,
			Name:           s.Name,
			Type:           s.Type,
			DependsOn:      string(depsJSON),
			Config:         string(configJSON),
			TimeoutSeconds: s.TimeoutSeconds,
			Position:       i,
		}
		if _, err := tx.NamedExecContext(ctx, insertStep, stepDAO); err != nil {
			return fmt.Errorf("保存Step定义失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// GetWorkflow 按ID和租户获取Workflow定义（含Step）
func (r *Repository) GetWorkflow(ctx context.Context, workflowID, tenantID string) (*workflow.Workflow, error) {
	var wfDAO dao.WorkflowDAO
	query := r.db.Rebind(`SELECT * FROM workflow_definition WHERE id = ? AND tenant_id = ?`)
	if err := r.db.GetContext(ctx, &wfDAO, query, workflowID, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("查询Workflow失败: %w", err)
	}

	steps, err := r.loadSteps(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return &workflow.Workflow{
		ID:          wfDAO.ID,
		TenantID:    wfDAO.TenantID,
		Name:        wfDAO.Name,
		Description: wfDAO.Description,
		Steps:       steps,
		CreateTime:  wfDAO.CreateTime,
	}, nil
}

// ListWorkflows 列出租户下所有Workflow定义（含Step）
func (r *Repository) ListWorkflows(ctx context.Context, tenantID string) ([]*workflow.Workflow, error) {
	var wfDAOs []dao.WorkflowDAO
	query := r.db.Rebind(`SELECT * FROM workflow_definition WHERE tenant_id = ? ORDER BY create_time`)
	if err := r.db.SelectContext(ctx, &wfDAOs, query, tenantID); err != nil {
		return nil, fmt.Errorf("查询Workflow列表失败: %w", err)
	}

	result := make([]*workflow.Workflow, 0, len(wfDAOs))
	for _, wfDAO := range wfDAOs {
		steps, err := r.loadSteps(ctx, wfDAO.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, &workflow.Workflow{
			ID:          wfDAO.ID,
			TenantID:    wfDAO.TenantID,
			Name:        wfDAO.Name,
			Description: wfDAO.Description,
			Steps:       steps,
			CreateTime:  wfDAO.CreateTime,
		})
	}
	return result, nil
}

// loadSteps 加载Workflow的Step定义，按定义顺序排序
func (r *Repository) loadSteps(ctx context.Context, workflowID string) ([]*workflow.Step, error) {
	var stepDAOs []dao.StepDAO
	query := r.db.Rebind(`SELECT * FROM step_definition WHERE workflow_id = ? ORDER BY position`)
	if err := r.db.SelectContext(ctx, &stepDAOs, query, workflowID); err != nil {
		return nil, fmt.Errorf("查询Step定义失败: %w", err)
	}

	steps := make([]*workflow.Step, 0, len(stepDAOs))
	for _, sd := range stepDAOs {
		var dependsOn []string
		if sd.DependsOn != "" {
			if err := json.Unmarshal([]byte(sd.DependsOn), &dependsOn); err != nil {
				return nil, fmt.Errorf("反序列化Step依赖失败: %w", err)
			}
		}
		var config map[string]any
		if sd.Config != "" {
			if err := json.Unmarshal([]byte(sd.Config), &config); err != nil {
				return nil, fmt.Errorf("反序列化Step配置失败: %w", err)
			}
		}
		steps = append(steps, &workflow.Step{
			ID:             sd.ID,
			Name:           sd.Name,
			Type:           sd.Type,
			DependsOn:      dependsOn,
			Config:         config,
			TimeoutSeconds: sd.TimeoutSeconds,
		})
	}
	return steps, nil
}

// ========== Execution ==========

// CreateExecution 创建Execution记录
func (r *Repository) CreateExecution(ctx context.Context, exec *workflow.Execution) error {
	execDAO, err := executionToDAO(exec)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO execution (id, workflow_id, tenant_id, status, input, variables, step_results,
		error_message, started_at, paused_at, resumed_at, completed_at, cancelled_at, create_time)
	VALUES (:id, :workflow_id, :tenant_id, :status, :input, :variables, :step_results,
		:error_message, :started_at, :paused_at, :resumed_at, :completed_at, :cancelled_at, :create_time)
	`
	if _, err := r.db.NamedExecContext(ctx, query, execDAO); err != nil {
		return fmt.Errorf("创建Execution失败: %w", err)
	}
	return nil
}

// GetExecution 按ID和租户获取Execution
func (r *Repository) GetExecution(ctx context.Context, executionID, tenantID string) (*workflow.Execution, error) {
	var execDAO dao.ExecutionDAO
	query := r.db.Rebind(`SELECT * FROM execution WHERE id = ? AND tenant_id = ?`)
	if err := r.db.GetContext(ctx, &execDAO, query, executionID, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("查询Execution失败: %w", err)
	}
	return executionFromDAO(&execDAO)
}

// ListExecutionsByStatus 按状态列出所有租户的Execution
func (r *Repository) ListExecutionsByStatus(ctx context.Context, status string) ([]*workflow.Execution, error) {
	var execDAOs []dao.ExecutionDAO
	query := r.db.Rebind(`SELECT * FROM execution WHERE status = ? ORDER BY create_time`)
	if err := r.db.SelectContext(ctx, &execDAOs, query, status); err != nil {
		return nil, fmt.Errorf("按状态查询Execution失败: %w", err)
	}

	result := make([]*workflow.Execution, 0, len(execDAOs))
	for i := range execDAOs {
		exec, err := executionFromDAO(&execDAOs[i])
		if err != nil {
			return nil, err
		}
		result = append(result, exec)
	}
	return result, nil
}

// UpdateExecution 对Execution做原子合并更新
// 在单个事务内行锁读取当前行，将patch的variables/step_results按键合并后写回，
// 保证两个并发完成的Step不会互相覆盖对方的追加
func (r *Repository) UpdateExecution(ctx context.Context, executionID, tenantID string, patch *storage.ExecutionPatch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	var execDAO dao.ExecutionDAO
	query := tx.Rebind(`SELECT * FROM execution WHERE id = ? AND tenant_id = ?` + r.dialect.LockSuffix())
	if err := tx.GetContext(ctx, &execDAO, query, executionID, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("锁定Execution行失败: %w", err)
	}

	exec, err := executionFromDAO(&execDAO)
	if err != nil {
		return err
	}

	if patch.Status != nil {
		exec.Status = *patch.Status
	}
	if patch.Error != nil {
		exec.Error = *patch.Error
	}
	for k, v := range patch.Variables {
		exec.Variables[k] = v
	}
	for k, v := range patch.StepResults {
		exec.StepResults[k] = v
	}
	if patch.StartedAt != nil {
		exec.StartedAt = patch.StartedAt
	}
	if patch.PausedAt != nil {
		exec.PausedAt = patch.PausedAt
	}
	if patch.ResumedAt != nil {
		exec.ResumedAt = patch.ResumedAt
	}
	if patch.CompletedAt != nil {
		exec.CompletedAt = patch.CompletedAt
	}
	if patch.CancelledAt != nil {
		exec.CancelledAt = patch.CancelledAt
	}

	updatedDAO, err := executionToDAO(exec)
	if err != nil {
		return err
	}

	updateSQL := `
	UPDATE execution SET status = :status, variables = :variables, step_results = :step_results,
		error_message = :error_message, started_at = :started_at, paused_at = :paused_at,
		resumed_at = :resumed_at, completed_at = :completed_at, cancelled_at = :cancelled_at
	WHERE id = :id AND tenant_id = :tenant_id
	`
	if _, err := tx.NamedExecContext(ctx, updateSQL, updatedDAO); err != nil {
		return fmt.Errorf("更新Execution失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ========== StepExecution ==========

// CreateStepExecution 创建StepExecution记录（幂等创建）
// 复合ID已存在时返回ErrAlreadyExists，由调用方识别重复投递
func (r *Repository) CreateStepExecution(ctx context.Context, rec *workflow.StepExecution) error {
	stepDAO, err := stepExecutionToDAO(rec)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO step_execution (id, execution_id, step_id, tenant_id, status, output, variables,
		retry_count, last_retry_at, started_at, completed_at, error_message)
	VALUES (:id, :execution_id, :step_id, :tenant_id, :status, :output, :variables,
		:retry_count, :last_retry_at, :started_at, :completed_at, :error_message)
	`
	if _, err := r.db.NamedExecContext(ctx, query, stepDAO); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("创建StepExecution失败: %w", err)
	}
	return nil
}

// GetStepExecution 按复合ID和租户获取StepExecution
func (r *Repository) GetStepExecution(ctx context.Context, id, tenantID string) (*workflow.StepExecution, error) {
	var stepDAO dao.StepExecutionDAO
	query := r.db.Rebind(`SELECT * FROM step_execution WHERE id = ? AND tenant_id = ?`)
	if err := r.db.GetContext(ctx, &stepDAO, query, id, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("查询StepExecution失败: %w", err)
	}
	return stepExecutionFromDAO(&stepDAO)
}

// ListStepExecutions 列出Execution下的所有StepExecution
func (r *Repository) ListStepExecutions(ctx context.Context, executionID, tenantID string) ([]*workflow.StepExecution, error) {
	var stepDAOs []dao.StepExecutionDAO
	query := r.db.Rebind(`SELECT * FROM step_execution WHERE execution_id = ? AND tenant_id = ?`)
	if err := r.db.SelectContext(ctx, &stepDAOs, query, executionID, tenantID); err != nil {
		return nil, fmt.Errorf("查询StepExecution列表失败: %w", err)
	}

	result := make([]*workflow.StepExecution, 0, len(stepDAOs))
	for i := range stepDAOs {
		rec, err := stepExecutionFromDAO(&stepDAOs[i])
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StepID < result[j].StepID })
	return result, nil
}

// UpdateStepExecution 对StepExecution做部分更新（行锁读改写事务）
func (r *Repository) UpdateStepExecution(ctx context.Context, id, tenantID string, patch *storage.StepExecutionPatch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	var stepDAO dao.StepExecutionDAO
	query := tx.Rebind(`SELECT * FROM step_execution WHERE id = ? AND tenant_id = ?` + r.dialect.LockSuffix())
	if err := tx.GetContext(ctx, &stepDAO, query, id, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("锁定StepExecution行失败: %w", err)
	}

	rec, err := stepExecutionFromDAO(&stepDAO)
	if err != nil {
		return err
	}

	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Output != nil {
		rec.Output = patch.Output
	}
	if patch.Variables != nil {
		rec.Variables = patch.Variables
	}
	if patch.Error != nil {
		rec.Error = *patch.Error
	}
	if patch.RetryCount != nil {
		rec.RetryCount = *patch.RetryCount
	}
	if patch.LastRetryAt != nil {
		rec.LastRetryAt = patch.LastRetryAt
	}
	if patch.StartedAt != nil {
		rec.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		rec.CompletedAt = patch.CompletedAt
	}

	updatedDAO, err := stepExecutionToDAO(rec)
	if err != nil {
		return err
	}

	updateSQL := `
	UPDATE step_execution SET status = :status, output = :output, variables = :variables,
		error_message = :error_message, retry_count = :retry_count, last_retry_at = :last_retry_at,
		started_at = :started_at, completed_at = :completed_at
	WHERE id = :id AND tenant_id = :tenant_id
	`
	if _, err := tx.NamedExecContext(ctx, updateSQL, updatedDAO); err != nil {
		return fmt.Errorf("更新StepExecution失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ========== DAO转换 ==========

func executionToDAO(exec *workflow.Execution) (*dao.ExecutionDAO, error) {
	inputJSON, err := json.Marshal(exec.Input)
	if err != nil {
		return nil, fmt.Errorf("序列化input失败: %w", err)
	}
	varsJSON, err := json.Marshal(exec.Variables)
	if err != nil {
		return nil, fmt.Errorf("序列化variables失败: %w", err)
	}
	resultsJSON, err := json.Marshal(exec.StepResults)
	if err != nil {
		return nil, fmt.Errorf("序列化step_results失败: %w", err)
	}

	return &dao.ExecutionDAO{
		ID:          exec.ID,
		WorkflowID:  exec.WorkflowID,
		TenantID:    exec.TenantID,
		Status:      exec.Status,
		Input:       string(inputJSON),
		Variables:   string(varsJSON),
		StepResults: string(resultsJSON),
		Error:       exec.Error,
		StartedAt:   toNullTime(exec.StartedAt),
		PausedAt:    toNullTime(exec.PausedAt),
		ResumedAt:   toNullTime(exec.ResumedAt),
		CompletedAt: toNullTime(exec.CompletedAt),
		CancelledAt: toNullTime(exec.CancelledAt),
		CreateTime:  exec.CreateTime,
	}, nil
}

func executionFromDAO(execDAO *dao.ExecutionDAO) (*workflow.Execution, error) {
	exec := &workflow.Execution{
		ID:          execDAO.ID,
		WorkflowID:  execDAO.WorkflowID,
		TenantID:    execDAO.TenantID,
		Status:      execDAO.Status,
		Input:       make(map[string]any),
		Variables:   make(map[string]any),
		StepResults: make(map[string]*workflow.StepResult),
		Error:       execDAO.Error,
		StartedAt:   fromNullTime(execDAO.StartedAt),
		PausedAt:    fromNullTime(execDAO.PausedAt),
		ResumedAt:   fromNullTime(execDAO.ResumedAt),
		CompletedAt: fromNullTime(execDAO.CompletedAt),
		CancelledAt: fromNullTime(execDAO.CancelledAt),
		CreateTime:  execDAO.CreateTime,
	}

	if execDAO.Input != "" {
		if err := json.Unmarshal([]byte(execDAO.Input), &exec.Input); err != nil {
			return nil, fmt.Errorf("反序列化input失败: %w", err)
		}
	}
	if execDAO.Variables != "" {
		if err := json.Unmarshal([]byte(execDAO.Variables), &exec.Variables); err != nil {
			return nil, fmt.Errorf("反序列化variables失败: %w", err)
		}
	}
	if execDAO.StepResults != "" {
		if err := json.Unmarshal([]byte(execDAO.StepResults), &exec.StepResults); err != nil {
			return nil, fmt.Errorf("反序列化step_results失败: %w", err)
		}
	}
	if exec.Input == nil {
		exec.Input = make(map[string]any)
	}
	if exec.Variables == nil {
		exec.Variables = make(map[string]any)
	}
	if exec.StepResults == nil {
		exec.StepResults = make(map[string]*workflow.StepResult)
	}
	return exec, nil
}

func stepExecutionToDAO(rec *workflow.StepExecution) (*dao.StepExecutionDAO, error) {
	outputJSON, err := json.Marshal(rec.Output)
	if err != nil {
		return nil, fmt.Errorf("序列化output失败: %w", err)
	}
	varsJSON, err := json.Marshal(rec.Variables)
	if err != nil {
		return nil, fmt.Errorf("序列化variables失败: %w", err)
	}
	return &dao.StepExecutionDAO{
		ID:          rec.ID,
		ExecutionID: rec.ExecutionID,
		StepID:      rec.StepID,
		TenantID:    rec.TenantID,
		Status:      rec.Status,
		Output:      string(outputJSON),
		Variables:   string(varsJSON),
		RetryCount:  rec.RetryCount,
		LastRetryAt: toNullTime(rec.LastRetryAt),
		StartedAt:   toNullTime(rec.StartedAt),
		CompletedAt: toNullTime(rec.CompletedAt),
		Error:       rec.Error,
	}, nil
}

func stepExecutionFromDAO(stepDAO *dao.StepExecutionDAO) (*workflow.StepExecution, error) {
	rec := &workflow.StepExecution{
		ID:          stepDAO.ID,
		ExecutionID: stepDAO.ExecutionID,
		StepID:      stepDAO.StepID,
		TenantID:    stepDAO.TenantID,
		Status:      stepDAO.Status,
		RetryCount:  stepDAO.RetryCount,
		LastRetryAt: fromNullTime(stepDAO.LastRetryAt),
		StartedAt:   fromNullTime(stepDAO.StartedAt),
		CompletedAt: fromNullTime(stepDAO.CompletedAt),
		Error:       stepDAO.Error,
	}
	if stepDAO.Output != "" {
		if err := json.Unmarshal([]byte(stepDAO.Output), &rec.Output); err != nil {
			return nil, fmt.Errorf("反序列化output失败: %w", err)
		}
	}
	if stepDAO.Variables != "" {
		if err := json.Unmarshal([]byte(stepDAO.Variables), &rec.Variables); err != nil {
			return nil, fmt.Errorf("反序列化variables失败: %w", err)
		}
	}
	return rec, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// isDuplicateKeyError 识别三种方言的唯一约束冲突错误
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite / postgres
		strings.Contains(msg, "duplicate key") || // postgres
		strings.Contains(msg, "duplicate entry") // mysql
}

// isDuplicateIndexError 识别重复建索引错误（MySQL无IF NOT EXISTS，1061）
func isDuplicateIndexError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key name") ||
		strings.Contains(msg, "already exists")
}
