package engine

import "sync/atomic"

// Metrics 引擎运行计数器（对外导出）
// 全部为进程内原子计数，重启归零
type Metrics struct {
	stepsDispatched    atomic.Int64
	stepsRetried       atomic.Int64
	stepsCompleted     atomic.Int64
	stepsFailed        atomic.Int64
	lateResultsDropped atomic.Int64

	executionsStarted   atomic.Int64
	executionsCompleted atomic.Int64
	executionsFailed    atomic.Int64
	executionsCancelled atomic.Int64
}

// MetricsSnapshot 计数器快照（对外导出）
type MetricsSnapshot struct {
	StepsDispatched    int64 `json:"steps_dispatched"`
	StepsRetried       int64 `json:"steps_retried"`
	StepsCompleted     int64 `json:"steps_completed"`
	StepsFailed        int64 `json:"steps_failed"`
	LateResultsDropped int64 `json:"late_results_dropped"`

	ExecutionsStarted   int64 `json:"executions_started"`
	ExecutionsCompleted int64 `json:"executions_completed"`
	ExecutionsFailed    int64 `json:"executions_failed"`
	ExecutionsCancelled int64 `json:"executions_cancelled"`
}

// Snapshot 获取当前计数快照（对外导出）
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		StepsDispatched:     m.stepsDispatched.Load(),
		StepsRetried:        m.stepsRetried.Load(),
		StepsCompleted:      m.stepsCompleted.Load(),
		StepsFailed:         m.stepsFailed.Load(),
		LateResultsDropped:  m.lateResultsDropped.Load(),
		ExecutionsStarted:   m.executionsStarted.Load(),
		ExecutionsCompleted: m.executionsCompleted.Load(),
		ExecutionsFailed:    m.executionsFailed.Load(),
		ExecutionsCancelled: m.executionsCancelled.Load(),
	}
}
