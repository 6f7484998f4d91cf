package change

import (
	"testing"
	"time"
)

func TestDecide_ChangesAlwaysNotify(t *testing.T) {
	now := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	last := now.Add(-time.Minute)

	d := Decide(DecisionInput{
		HasChanges:     true,
		StateKnown:     true,
		LastNotifiedAt: &last,
		Now:            now,
		Window:         Window{StartHour: 8, EndHour: 20, Location: time.UTC},
	})

	if !d.Notify || d.Reason != ReasonChanges {
		t.Errorf("changes must notify regardless of timer and window, got %+v", d)
	}
}

func TestDecide_HeartbeatSchedule(t *testing.T) {
	window := Window{StartHour: 7, EndHour: 22, Location: time.UTC}
	start := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	// Первый heartbeat: уведомлений ещё не было
	first := Decide(DecisionInput{StateKnown: true, Now: start, Interval: time.Hour, Window: window})
	if !first.Notify || first.Reason != ReasonHeartbeat {
		t.Fatalf("first-ever heartbeat expected, got %+v", first)
	}

	// Через час и минуту — снова heartbeat
	later := start.Add(time.Hour + time.Minute)
	second := Decide(DecisionInput{StateKnown: true, LastNotifiedAt: &start, Now: later, Interval: time.Hour, Window: window})
	if !second.Notify {
		t.Errorf("heartbeat expected after 1h01m, got %+v", second)
	}

	// Через 30 минут после него — нет
	tooSoon := later.Add(30 * time.Minute)
	third := Decide(DecisionInput{StateKnown: true, LastNotifiedAt: &later, Now: tooSoon, Interval: time.Hour, Window: window})
	if third.Notify {
		t.Errorf("no heartbeat expected after 30m, got %+v", third)
	}
}

func TestDecide_OutsideWindow(t *testing.T) {
	now := time.Date(2026, 10, 16, 23, 30, 0, 0, time.UTC)
	d := Decide(DecisionInput{
		StateKnown: true,
		Now:        now,
		Window:     Window{StartHour: 7, EndHour: 22, Location: time.UTC},
	})
	if d.Notify {
		t.Errorf("heartbeat outside window should be suppressed, got %+v", d)
	}
}

func TestDecide_UnknownStateDisablesHeartbeat(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	d := Decide(DecisionInput{StateKnown: false, Now: now, Window: AlwaysOpen()})
	if d.Notify {
		t.Errorf("unknown state must disable heartbeat, got %+v", d)
	}
}

func TestHourlyElapsed_Boundary(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	exactly := now.Add(-time.Hour)
	almost := now.Add(-time.Hour + time.Second)

	if !HourlyElapsed(&exactly, now, time.Hour) {
		t.Error("exactly one hour should count as elapsed")
	}
	if HourlyElapsed(&almost, now, time.Hour) {
		t.Error("59m59s should not count as elapsed")
	}
	if !HourlyElapsed(nil, now, 0) {
		t.Error("nil last notification should count as elapsed")
	}
}

func TestWindow_Contains(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 10, 16, h, 15, 0, 0, time.UTC) }

	day := Window{StartHour: 7, EndHour: 22, Location: time.UTC}
	if !day.Contains(at(7)) || !day.Contains(at(21)) {
		t.Error("day window should include 07 and 21")
	}
	if day.Contains(at(22)) || day.Contains(at(6)) {
		t.Error("day window should exclude 22 and 06")
	}

	night := Window{StartHour: 22, EndHour: 6, Location: time.UTC}
	if !night.Contains(at(23)) || !night.Contains(at(2)) {
		t.Error("overnight window should include 23 and 02")
	}
	if night.Contains(at(12)) {
		t.Error("overnight window should exclude noon")
	}

	if !AlwaysOpen().Contains(at(3)) {
		t.Error("AlwaysOpen should contain any time")
	}
}

func TestWindow_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	w := Window{StartHour: 7, EndHour: 22, Location: loc}

	// 05:00 UTC = 08:00 UTC+3
	if !w.Contains(time.Date(2026, 10, 16, 5, 0, 0, 0, time.UTC)) {
		t.Error("window should be evaluated in its own location")
	}
}

func TestSlot(t *testing.T) {
	ts := time.Date(2026, 10, 16, 14, 59, 59, 0, time.UTC)
	if got := Slot(ts, nil); got != "2026-10-16T14" {
		t.Errorf("unexpected slot %q", got)
	}
	if Slot(ts, nil) != Slot(ts.Add(-59*time.Minute), nil) {
		t.Error("same hour should map to the same slot")
	}
	if got := Slot(ts, time.FixedZone("UTC+3", 3*3600)); got != "2026-10-16T17" {
		t.Errorf("slot should use location, got %q", got)
	}
}
