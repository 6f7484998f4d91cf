// Package outbox доставляет уведомления из durable outbox.
//
// # Обзор
//
// Orchestrator только вставляет строки в notification_outbox; доставка
// полностью асинхронна и выполняется Worker'ом:
//
//   - Периодически (каждую минуту) и по сигналу outbox.pending из RabbitMQ
//   - Возвращает зависшие processing-строки в retrying (stale recovery)
//   - Забирает пачку готовых строк через FOR UPDATE SKIP LOCKED
//   - Отправляет каждую через transport.Sender
//   - Переводит строку в sent, retrying (с backoff) или dead_letter
//
// Несколько воркеров могут работать параллельно: claim в БД гарантирует,
// что одна строка не обрабатывается двумя воркерами одновременно.
//
// # Использование
//
//	w := outbox.New(outbox.Config{
//	    Store:  outboxRepo,
//	    Sender: sender,
//	    Logger: logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Backoff
//
// delay = base * 2^(attempt-1), не больше max. По умолчанию 30s и 1h:
// 30s, 60s, 120s, 240s, 480s, ... 3600s.
//
// Когда attempt_count достигает max_attempts, строка уходит в dead_letter
// и больше не забирается; оператор может вернуть её через Requeue.
package outbox
