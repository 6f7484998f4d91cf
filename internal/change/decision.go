package change

import "time"

// DefaultHeartbeatInterval — минимальный интервал между heartbeat-уведомлениями.
const DefaultHeartbeatInterval = time.Hour

// Reason — почему принято решение об уведомлении.
type Reason string

const (
	// ReasonNone — уведомлять не нужно.
	ReasonNone Reason = "none"

	// ReasonChanges — есть изменения контента.
	ReasonChanges Reason = "changes"

	// ReasonHeartbeat — изменений нет, но пора отправить плановое уведомление.
	ReasonHeartbeat Reason = "heartbeat"
)

// DecisionInput — всё, что нужно для решения об уведомлении.
type DecisionInput struct {
	// HasChanges — из Descriptor.
	HasChanges bool

	// StateKnown — состояние планировщика было прочитано в этом run.
	// false отключает heartbeat-ветку целиком.
	StateKnown bool

	// LastNotifiedAt — время последнего уведомления (nil — не было).
	LastNotifiedAt *time.Time

	// Now — текущее время run.
	Now time.Time

	// Interval — интервал heartbeat (default: 1h).
	Interval time.Duration

	// Window — окно heartbeat-уведомлений.
	Window Window
}

// Decision — результат Decide.
type Decision struct {
	Notify bool   `json:"notify"`
	Reason Reason `json:"reason"`
}

// Decide реализует правило:
//
//	notify = hasChanges OR (stateKnown AND withinWindow AND hourlyElapsed)
//
// hourlyElapsed истинно, если уведомлений ещё не было или с последнего
// прошло не меньше Interval.
func Decide(in DecisionInput) Decision {
	if in.HasChanges {
		return Decision{Notify: true, Reason: ReasonChanges}
	}
	if !in.StateKnown {
		return Decision{Reason: ReasonNone}
	}
	if !in.Window.Contains(in.Now) {
		return Decision{Reason: ReasonNone}
	}
	if HourlyElapsed(in.LastNotifiedAt, in.Now, in.Interval) {
		return Decision{Notify: true, Reason: ReasonHeartbeat}
	}
	return Decision{Reason: ReasonNone}
}

// HourlyElapsed возвращает true, если last == nil или now − last ≥ interval.
func HourlyElapsed(last *time.Time, now time.Time, interval time.Duration) bool {
	if last == nil {
		return true
	}
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return now.Sub(*last) >= interval
}
