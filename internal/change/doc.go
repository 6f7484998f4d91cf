// Package change вычисляет, что изменилось у клиента между двумя run,
// и решает, нужно ли уведомление.
//
// Структура:
//   - change.go   — Compute / Classify: дельты счётчиков по платформам
//   - decision.go — Decide: change-triggered или hourly heartbeat
//   - window.go   — суточное окно уведомлений и часовые слоты
//
// Все функции чистые: время и пороги передаются явно.
package change
