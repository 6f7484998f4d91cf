// Package api содержит операторский HTTP API.
//
// Структура:
//   - handler.go        — Handler с DI (хранилища, orchestrator, logger)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects
//   - outbox_handler.go — просмотр outbox и повторная постановка dead_letter
//   - state_handler.go  — scheduler_state клиента
//   - run_handler.go    — ручной запуск run (только процесс scheduler)
//
// Маршруты регистрируются только для заданных зависимостей: worker
// отдаёт outbox и state, scheduler дополнительно /runs.
package api
