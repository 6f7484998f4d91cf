// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// RabbitMQ в socialwatch необязателен: durable-состояние доставки живёт
// в Postgres (notification_outbox), а очереди служат только для
// ускорения и видимости:
//
//   - outbox.pending  — scheduler сообщает worker'у, что в outbox появились строки
//   - alerts          — операторские алерты (сбои fetch, dead letter, ошибки run)
//   - dlq.outbox      — строки outbox, ушедшие в dead_letter
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Exchanges:
//   - socialwatch.outbox — сигналы outbox
//   - socialwatch.alerts — алерты
//   - socialwatch.dlq    — dead letter
package mq
