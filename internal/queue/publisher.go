package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/smart-tasks/internal/events"
	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultEventExchangeName is the topic exchange task events are published to
	DefaultEventExchangeName = "task_events"

	RoutingKeyTaskCreated  = "task.created"
	RoutingKeyTaskUpdated  = "task.updated"
	RoutingKeyThreadNotify = "thread.notify"
)

// publishChannel is the part of *amqp.Channel the publisher needs
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// eventEnvelope is the wire form of a task event
type eventEnvelope struct {
	ID         uuid.UUID         `json:"id"`
	Type       models.EventType  `json:"type"`
	Task       *models.Task      `json:"task"`
	OldStatus  models.TaskStatus `json:"old_status,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// noticeEnvelope is the wire form of a completion notice
type noticeEnvelope struct {
	ID uuid.UUID `json:"id"`
	models.CompletionNotice
}

// RabbitMQPublisher publishes task events and completion notices to a topic exchange
type RabbitMQPublisher struct {
	channel  publishChannel
	exchange string
	logger   *zap.Logger
}

// NewRabbitMQPublisher declares the event exchange on ch and returns a publisher using it
func NewRabbitMQPublisher(ch *amqp.Channel, log *zap.Logger) (*RabbitMQPublisher, error) {
	if err := ch.ExchangeDeclare(DefaultEventExchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare event exchange: %w", err)
	}
	return newPublisher(ch, DefaultEventExchangeName, log), nil
}

func newPublisher(ch publishChannel, exchange string, log *zap.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{channel: ch, exchange: exchange, logger: logger.OrNop(log)}
}

// PublishTaskEvent publishes event under task.created or task.updated
func (p *RabbitMQPublisher) PublishTaskEvent(ctx context.Context, event models.TaskEvent) error {
	var key string
	switch event.Type {
	case models.EventTaskCreated:
		key = RoutingKeyTaskCreated
	case models.EventTaskUpdated:
		key = RoutingKeyTaskUpdated
	default:
		return fmt.Errorf("unknown event type: %q", event.Type)
	}
	if event.Task == nil {
		return fmt.Errorf("%s event has no task", event.Type)
	}

	env := eventEnvelope{
		ID:         uuid.New(),
		Type:       event.Type,
		Task:       event.Task,
		OldStatus:  event.OldStatus,
		OccurredAt: event.OccurredAt,
	}
	return p.publish(ctx, key, env.ID, event.Task.ThreadID, env)
}

// PublishCompletionNotice publishes notice under thread.notify
func (p *RabbitMQPublisher) PublishCompletionNotice(ctx context.Context, notice models.CompletionNotice) error {
	env := noticeEnvelope{ID: uuid.New(), CompletionNotice: notice}
	return p.publish(ctx, RoutingKeyThreadNotify, env.ID, notice.ThreadID, env)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, key string, id uuid.UUID, threadID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", key, err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    id.String(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"thread_id": threadID},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s message: %w", key, err)
	}

	p.logger.Debug("event_published",
		zap.String("routing_key", key),
		zap.String("message_id", id.String()),
		zap.String("thread_id", logger.SanitizeID(threadID)),
	)
	return nil
}

var _ events.Sink = (*RabbitMQPublisher)(nil)
