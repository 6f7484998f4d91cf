package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeOutbox Exchange = "socialwatch.outbox"
	ExchangeAlerts Exchange = "socialwatch.alerts"
	ExchangeDLQ    Exchange = "socialwatch.dlq"
)

// Queues — имена очередей.
const (
	QueueOutboxPending Queue = "outbox.pending"
	QueueAlerts        Queue = "alerts"
	QueueDLQOutbox     Queue = "dlq.outbox"
)

// Routing keys.
const (
	RoutingKeyPending   RoutingKey = "pending"
	RoutingKeyAlert     RoutingKey = "alert"
	RoutingKeyDLQOutbox RoutingKey = "outbox"
)

// wakeupTTL — сигналы outbox.pending не имеют смысла дольше одного poll-интервала.
const wakeupTTL = 60_000

type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
	args       amqp.Table
}

// topology — полное описание очередей socialwatch.
var topology = []binding{
	// outbox.pending — короткоживущие сигналы, без DLQ
	{QueueOutboxPending, RoutingKeyPending, ExchangeOutbox, amqp.Table{
		"x-message-ttl": int32(wakeupTTL),
		"x-max-length":  int32(100),
	}},

	// alerts — читает внешний алертинг
	{QueueAlerts, RoutingKeyAlert, ExchangeAlerts, nil},

	// dlq.outbox — ручной разбор
	{QueueDLQOutbox, RoutingKeyDLQOutbox, ExchangeDLQ, nil},
}

// SetupTopology объявляет exchanges, queues и bindings. Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeOutbox, ExchangeAlerts, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, b := range topology {
			_, err := ch.QueueDeclare(
				string(b.queue), // name
				true,            // durable
				false,           // delete when unused
				false,           // exclusive
				false,           // no-wait
				b.args,          // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}

			err = ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  socialwatch RabbitMQ topology:

    socialwatch.outbox (direct)
    └── outbox.pending [routing: pending]
            Consumer: socialwatch-worker (wake-up)

    socialwatch.alerts (direct)
    └── alerts [routing: alert]
            Consumer: external alerting

    socialwatch.dlq (direct)
    └── dlq.outbox [routing: outbox]
            Manual processing
  `
}
