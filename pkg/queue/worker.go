package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// WorkerConfig worker池配置（对外导出）
// 三个逻辑队列各自独立的并发上限，重试流量不会饿死首次调度
type WorkerConfig struct {
	WorkflowConcurrency int // workflow-start队列并发数
	StepConcurrency     int // step-run队列并发数
	RetryConcurrency    int // step-retry队列并发数
}

// DefaultWorkerConfig 默认worker配置（对外导出）
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkflowConcurrency: 10,
		StepConcurrency:     20,
		RetryConcurrency:    5,
	}
}

// Worker 任务消费者（对外导出）
// 基于watermill消息路由器，每个逻辑队列一个handler，
// 并发控制使用独立的token池
type Worker struct {
	queue   *WatermillQueue
	handler JobHandler
	router  *message.Router
	cfg     WorkerConfig
}

// NewWorker 创建Worker实例（对外导出）
func NewWorker(q *WatermillQueue, handler JobHandler, cfg WorkerConfig, logger watermill.LoggerAdapter) (*Worker, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	if cfg.WorkflowConcurrency <= 0 {
		cfg.WorkflowConcurrency = DefaultWorkerConfig().WorkflowConcurrency
	}
	if cfg.StepConcurrency <= 0 {
		cfg.StepConcurrency = DefaultWorkerConfig().StepConcurrency
	}
	if cfg.RetryConcurrency <= 0 {
		cfg.RetryConcurrency = DefaultWorkerConfig().RetryConcurrency
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("创建消息路由器失败: %w", err)
	}

	w := &Worker{
		queue:   q,
		handler: handler,
		router:  router,
		cfg:     cfg,
	}

	w.router.AddNoPublisherHandler(
		"workflow_start_handler",
		TopicWorkflowStart,
		q.Subscriber(),
		w.wrap(TopicWorkflowStart, cfg.WorkflowConcurrency, w.handleWorkflowStart),
	)
	w.router.AddNoPublisherHandler(
		"step_run_handler",
		TopicStepRun,
		q.Subscriber(),
		w.wrap(TopicStepRun, cfg.StepConcurrency, w.handleStepRun),
	)
	w.router.AddNoPublisherHandler(
		"step_retry_handler",
		TopicStepRetry,
		q.Subscriber(),
		w.wrap(TopicStepRetry, cfg.RetryConcurrency, w.handleStepRetry),
	)

	return w, nil
}

// Run 启动worker，阻塞直到ctx取消（对外导出）
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("✅ Worker已启动：workflow=%d, step=%d, retry=%d 并发",
		w.cfg.WorkflowConcurrency, w.cfg.StepConcurrency, w.cfg.RetryConcurrency)
	return w.router.Run(ctx)
}

// Running 返回路由器就绪信号channel（对外导出，测试用）
func (w *Worker) Running() chan struct{} {
	return w.router.Running()
}

// Close 关闭worker（对外导出）
func (w *Worker) Close() error {
	return w.router.Close()
}

// wrap 给handler套上并发token池、深度计数和epoch丢弃检查
// worker在等待token或消息期间不持有任何锁，协调状态全部在存储层
func (w *Worker) wrap(topic string, concurrency int, fn message.NoPublishHandlerFunc) message.NoPublishHandlerFunc {
	tokens := make(chan struct{}, concurrency)
	return func(msg *message.Message) error {
		tokens <- struct{}{}
		defer func() { <-tokens }()

		w.queue.markConsumed(topic)

		// 已被RemovePendingJobs清除的旧消息直接吸收
		executionID := msg.Metadata.Get(metadataExecutionID)
		epoch, _ := strconv.ParseInt(msg.Metadata.Get(metadataEpoch), 10, 64)
		if w.queue.shouldDrop(executionID, epoch) {
			log.Printf("🧹 [Worker] 丢弃已取消的任务: topic=%s, execution=%s", topic, executionID)
			return nil
		}

		return fn(msg)
	}
}

func (w *Worker) handleWorkflowStart(msg *message.Message) error {
	var job WorkflowStartJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		// 无法解析的消息重投也不会成功，记录后吸收
		log.Printf("❌ [Worker] workflow-start任务解析失败: %v", err)
		return nil
	}
	return w.handler.HandleWorkflowStart(msg.Context(), &job)
}

func (w *Worker) handleStepRun(msg *message.Message) error {
	var job StepJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		log.Printf("❌ [Worker] step-run任务解析失败: %v", err)
		return nil
	}
	return w.handler.HandleRunStep(msg.Context(), &job)
}

func (w *Worker) handleStepRetry(msg *message.Message) error {
	var job StepRetryJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		log.Printf("❌ [Worker] step-retry任务解析失败: %v", err)
		return nil
	}
	return w.handler.HandleRetryStep(msg.Context(), &job)
}
