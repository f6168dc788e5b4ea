// Package events 提供工作流生命周期事件总线。
// 发布为fire-and-forget，核心不依赖订阅者的消费结果，也不保证投递。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// TopicLifecycle 生命周期事件Topic
const TopicLifecycle = "workflow.events"

// EventType 事件类型（对外导出）
type EventType string

// 生命周期事件类型常量（对外导出）
const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventWorkflowPaused    EventType = "workflow.paused"
	EventWorkflowResumed   EventType = "workflow.resumed"
	EventWorkflowCancelled EventType = "workflow.cancelled"
)

// Event 生命周期事件（对外导出）
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	TenantID    string    `json:"tenant_id"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Bus 事件总线（对外导出）
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus 创建事件总线实例（对外导出）
func NewBus(logger watermill.LoggerAdapter) *Bus {
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
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish 发布事件（对外导出）
// fire-and-forget：发布失败只记录日志，不向调用方传播
func (b *Bus) Publish(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("❌ [事件总线] 序列化事件失败: type=%s, error=%v", event.Type, err)
		return
	}

	msg := message.NewMessage(uuid.NewString(), data)
	if err := b.pubsub.Publish(TopicLifecycle, msg); err != nil {
		log.Printf("❌ [事件总线] 发布事件失败: type=%s, execution=%s, error=%v",
			event.Type, event.ExecutionID, err)
	}
}

// Subscribe 订阅全部生命周期事件（对外导出）
// 返回的channel在ctx取消后关闭；订阅者消费过慢时事件可能丢失
func (b *Bus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicLifecycle)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	out := make(chan *Event, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Printf("❌ [事件总线] 反序列化事件失败: %v", err)
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- &event:
			default:
				// 订阅者积压，丢弃（核心不保证投递）
				log.Printf("⚠️ [事件总线] 订阅者积压，丢弃事件: type=%s, execution=%s",
					event.Type, event.ExecutionID)
			}
		}
	}()
	return out, nil
}

// Close 关闭事件总线（对外导出）
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
