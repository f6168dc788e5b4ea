package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// 消息metadata键
const (
	metadataExecutionID = "execution_id"
	metadataEpoch       = "epoch"
)

// WatermillQueue Queue契约的watermill gochannel实现（对外导出）
//
// gochannel没有原生延迟投递，延迟任务由队列持有的定时器实现；
// RemovePendingJobs通过两条路径生效：
//  1. 取消该Execution所有未触发的定时器
//  2. 递增该Execution的epoch，已发布但未被worker认领的旧消息
//     在消费侧按epoch丢弃
type WatermillQueue struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	timers map[string]map[string]*time.Timer // executionID -> timerID -> timer
	epochs map[string]int64                  // executionID -> 当前epoch

	depths map[string]*int64 // topic -> 深度计数
	closed bool
}

// NewWatermillQueue 创建watermill队列实例（对外导出）
func NewWatermillQueue(logger watermill.LoggerAdapter) *WatermillQueue {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	q := &WatermillQueue{
		pubsub: pubsub,
		logger: logger,
		timers: make(map[string]map[string]*time.Timer),
		epochs: make(map[string]int64),
		depths: make(map[string]*int64),
	}
	for _, topic := range []string{TopicWorkflowStart, TopicStepRun, TopicStepRetry} {
		var n int64
		q.depths[topic] = &n
	}
	return q
}

// Subscriber 获取消息订阅端（worker使用）（对外导出）
func (q *WatermillQueue) Subscriber() message.Subscriber {
	return q.pubsub
}

// AddWorkflowStart 投递启动工作流任务（对外导出）
func (q *WatermillQueue) AddWorkflowStart(ctx context.Context, job *WorkflowStartJob) error {
	return q.publish(ctx, TopicWorkflowStart, job.ExecutionID, job, 0)
}

// AddStepExecution 投递Step执行任务（对外导出）
func (q *WatermillQueue) AddStepExecution(ctx context.Context, job *StepJob, delay time.Duration) error {
	return q.publish(ctx, TopicStepRun, job.ExecutionID, job, delay)
}

// AddStepRetry 投递Step重试任务（对外导出）
func (q *WatermillQueue) AddStepRetry(ctx context.Context, job *StepRetryJob, delay time.Duration) error {
	return q.publish(ctx, TopicStepRetry, job.ExecutionID, job, delay)
}

// RemovePendingJobs 尽力移除指定Execution的未认领任务（对外导出）
func (q *WatermillQueue) RemovePendingJobs(ctx context.Context, executionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 1. 取消所有未触发的延迟任务
	cancelled := 0
	for timerID, timer := range q.timers[executionID] {
		if timer.Stop() {
			cancelled++
		}
		delete(q.timers[executionID], timerID)
	}
	delete(q.timers, executionID)

	// 2. 推进epoch，使已发布未认领的旧消息在消费侧被丢弃
	q.epochs[executionID]++

	log.Printf("🧹 [队列] 移除Execution %s 的待处理任务：取消%d个延迟任务，epoch=%d",
		executionID, cancelled, q.epochs[executionID])
	return nil
}

// Depths 各逻辑队列当前深度（对外导出）
func (q *WatermillQueue) Depths() map[string]int64 {
	result := make(map[string]int64, len(q.depths))
	for topic, n := range q.depths {
		result[topic] = atomic.LoadInt64(n)
	}
	return result
}

// Close 关闭队列，停止所有延迟定时器（对外导出）
func (q *WatermillQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	for _, timers := range q.timers {
		for _, timer := range timers {
			timer.Stop()
		}
	}
	q.timers = make(map[string]map[string]*time.Timer)
	q.mu.Unlock()

	return q.pubsub.Close()
}

// shouldDrop 判断消息是否属于已被RemovePendingJobs清除的旧epoch（消费侧调用）
func (q *WatermillQueue) shouldDrop(executionID string, msgEpoch int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return msgEpoch < q.epochs[executionID]
}

// markConsumed 任务被worker认领后递减深度计数（消费侧调用）
func (q *WatermillQueue) markConsumed(topic string) {
	if n, ok := q.depths[topic]; ok {
		atomic.AddInt64(n, -1)
	}
}

// publish 序列化任务并发布；delay>0时经由定时器延迟发布
func (q *WatermillQueue) publish(ctx context.Context, topic, executionID string, payload any, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("队列已关闭")
	}
	epoch := q.epochs[executionID]
	q.mu.Unlock()

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(metadataExecutionID, executionID)
	msg.Metadata.Set(metadataEpoch, strconv.FormatInt(epoch, 10))

	if delay <= 0 {
		if n, ok := q.depths[topic]; ok {
			atomic.AddInt64(n, 1)
		}
		return q.pubsub.Publish(topic, msg)
	}

	// 延迟投递：定时器触发时再发布，触发前可被RemovePendingJobs取消
	timerID := uuid.NewString()
	q.mu.Lock()
	if q.timers[executionID] == nil {
		q.timers[executionID] = make(map[string]*time.Timer)
	}
	timer := time.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		delete(q.timers[executionID], timerID)
		q.mu.Unlock()

		if n, ok := q.depths[topic]; ok {
			atomic.AddInt64(n, 1)
		}
		if err := q.pubsub.Publish(topic, msg); err != nil {
			log.Printf("❌ [队列] 延迟任务发布失败: topic=%s, execution=%s, error=%v", topic, executionID, err)
		}
	})
	q.timers[executionID][timerID] = timer
	q.mu.Unlock()

	return nil
}
