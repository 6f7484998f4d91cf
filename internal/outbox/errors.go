package outbox

import "errors"

// Ошибки outbox-воркера.
var (
	// ErrTickInProgress — предыдущий tick ещё выполняется.
	ErrTickInProgress = errors.New("outbox tick already in progress")

	// ErrNotDelivered — транспорт не принял сообщение без явной ошибки.
	ErrNotDelivered = errors.New("transport did not accept the message")

	// ErrStaleFinalAttempt — строка зависла в processing на последней попытке.
	ErrStaleFinalAttempt = errors.New("outbox row stuck in processing on the final attempt")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("outbox worker stopped")
)
