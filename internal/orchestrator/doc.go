// Package orchestrator выполняет один run сбора и уведомлений.
//
// Run запускается cron'ом или вручную через API и проходит фазы:
//
//	IDLE → LOCK_WAIT → LOADING → FANOUT → DRAINING → RELEASED → IDLE
//
//   - LOCK_WAIT — захват распределённой блокировки; не захвачена → run пропущен
//   - LOADING — активные клиенты и bulk-загрузка scheduler_state
//   - FANOUT — обработка клиентов с ограничением параллелизма (K=4);
//     новые клиенты не допускаются, если до дедлайна осталось меньше intake buffer
//   - DRAINING — ожидание уже допущенных клиентов
//   - RELEASED — блокировка освобождена
//
// Обработка клиента последовательна: fetch по включённым платформам →
// счётчики → дельта → решение → outbox → scheduler_state. Ошибка или
// паника одного клиента не влияет на остальных.
//
// Если scheduler_state не удалось загрузить, run работает в консервативном
// режиме: предыдущие счётчики считаются равными текущим, heartbeat
// отключён, состояние не записывается.
//
// Orchestrator сам не доставляет сообщения: он только вставляет строки
// в outbox (идемпотентно) и будит outbox-воркер через RabbitMQ.
package orchestrator
