package change

import "time"

// slotLayout — формат часового слота.
const slotLayout = "2006-01-02T15"

// Window — суточное окно, в которое разрешены heartbeat-уведомления.
//
// Часы задаются в локальном времени Location: [StartHour, EndHour).
// Окно может переходить через полночь (22 → 6). StartHour == EndHour
// означает "всегда открыто".
type Window struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// AlwaysOpen возвращает окно без ограничений.
func AlwaysOpen() Window {
	return Window{Location: time.UTC}
}

// Contains возвращает true, если t попадает в окно.
func (w Window) Contains(t time.Time) bool {
	start, end := clampHour(w.StartHour), clampHour(w.EndHour)
	if start == end {
		return true
	}

	h := t.In(w.location()).Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

func (w Window) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

func clampHour(h int) int {
	switch {
	case h < 0:
		return 0
	case h > 24:
		return 24
	case h == 24:
		return 0
	default:
		return h
	}
}

// Slot возвращает часовой слот времени t в часовом поясе loc.
// Heartbeat-уведомления дедуплицируются по слоту.
func Slot(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(slotLayout)
}
