package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/socialwatch/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeOutboxPending    MessageType = "outbox.pending"
	MessageTypeOutboxDeadLetter MessageType = "outbox.dead_letter"
	MessageTypeAlert            MessageType = "alert"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// OutboxPendingPayload — в outbox вставлены новые строки.
type OutboxPendingPayload struct {
	Inserted int    `json:"inserted"`
	RunID    string `json:"run_id,omitempty"`
}

// DeadLetterPayload — строка outbox ушла в dead_letter.
type DeadLetterPayload struct {
	OutboxID     uuid.UUID `json:"outbox_id"`
	ClientID     string    `json:"client_id"`
	Destination  string    `json:"destination"`
	AttemptCount int       `json:"attempt_count"`
	Error        string    `json:"error"`
}

// AlertPayload — операторский алерт.
type AlertPayload struct {
	Context string            `json:"context"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

func newMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishOutboxPending будит outbox-воркер.
// Потребитель: socialwatch-worker.
func (p *Publisher) PublishOutboxPending(ctx context.Context, inserted int, runID string) error {
	msg := newMessage(MessageTypeOutboxPending, OutboxPendingPayload{Inserted: inserted, RunID: runID})
	return p.Publish(ctx, ExchangeOutbox, RoutingKeyPending, msg)
}

// PublishDeadLetter публикует строку, ушедшую в dead_letter.
func (p *Publisher) PublishDeadLetter(ctx context.Context, e domain.OutboxEvent) error {
	msg := newMessage(MessageTypeOutboxDeadLetter, DeadLetterPayload{
		OutboxID:     e.ID,
		ClientID:     e.ClientID,
		Destination:  e.Destination,
		AttemptCount: e.AttemptCount,
		Error:        e.ErrorMessage,
	})
	return p.Publish(ctx, ExchangeDLQ, RoutingKeyDLQOutbox, msg)
}

// PublishAlert публикует операторский алерт.
func (p *Publisher) PublishAlert(ctx context.Context, scope, message string, attrs map[string]string) error {
	msg := newMessage(MessageTypeAlert, AlertPayload{Context: scope, Message: message, Attrs: attrs})
	return p.Publish(ctx, ExchangeAlerts, RoutingKeyAlert, msg)
}
