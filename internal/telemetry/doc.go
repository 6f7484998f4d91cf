// Package telemetry обеспечивает наблюдаемость socialwatch.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики run'ов и outbox
//   - alerter.go — операторские алерты (лог + метрика + RabbitMQ)
//
// Оба процесса (scheduler и worker) используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
