package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunInFlight — в этом процессе уже выполняется run.
	ErrRunInFlight = errors.New("run already in flight")

	// ErrClientPanic — обработка клиента завершилась паникой.
	ErrClientPanic = errors.New("client processing panicked")
)
