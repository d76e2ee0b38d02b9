package publisher

import (
	"context"
	"encoding/json"
	"time"

	"SoraStudio/backend/go/internal/models"
	"SoraStudio/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// 任务事件类型。
const (
	EventTaskCreated   = "task.created"
	EventTaskSucceeded = "task.succeeded"
	EventTaskFailed    = "task.failed"
)

// TaskEvent 是发布到 Kafka 的任务生命周期事件。
// 下游的通知、计费等旁路工作都消费这个主题，而不是在请求
// 路径里挂未被观测的后台调用。
type TaskEvent struct {
	Type      string            `json:"type"`
	TaskID    string            `json:"task_id"`
	Username  string            `json:"username"`
	Kind      string            `json:"kind"`
	Status    models.TaskStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventPublisher defines the interface for publishing task events.
type EventPublisher interface {
	Publish(ctx context.Context, event TaskEvent) error
	Close() error
}

// KafkaEventPublisher is responsible for publishing task events to Kafka.
type KafkaEventPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewKafkaEventPublisher creates a new KafkaEventPublisher.
func NewKafkaEventPublisher(brokers []string, topic string, logger *logger.Logger) *KafkaEventPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	})
	return &KafkaEventPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish sends a task event to the Kafka topic.
func (p *KafkaEventPublisher) Publish(ctx context.Context, event TaskEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal task event for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).
			WithPayload(map[string]interface{}{"topic": p.writer.Topic, "event": event.Type}).
			Error("Failed to write task event to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
