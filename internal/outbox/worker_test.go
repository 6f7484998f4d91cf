package outbox

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/socialwatch/internal/domain"
)

// --- Backoff ---

func TestBackoff(t *testing.T) {
	base, max := 30*time.Second, time.Hour
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
		{7, 1920 * time.Second},
		{8, time.Hour},
		{50, time.Hour},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, base, max); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if got := Backoff(2, 0, 0); got != 60*time.Second {
		t.Errorf("zero values should use defaults, got %v", got)
	}
}

// --- fakes ---

type memStore struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*domain.OutboxEvent
	calls    []string
	claimErr error
	claims   int
}

func newMemStore(events ...domain.OutboxEvent) *memStore {
	s := &memStore{rows: make(map[uuid.UUID]*domain.OutboxEvent)}
	for i := range events {
		e := events[i]
		s.rows[e.ID] = &e
	}
	return s
}

func (s *memStore) RecoverStale(_ context.Context, staleBefore, now time.Time) (domain.RecoverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "recover")

	var res domain.RecoverResult
	for _, e := range s.rows {
		if e.Status != domain.OutboxStatusProcessing || e.LastAttemptAt == nil || !e.LastAttemptAt.Before(staleBefore) {
			continue
		}
		if e.AttemptsExhausted() {
			e.Status = domain.OutboxStatusDeadLetter
			res.DeadLettered = append(res.DeadLettered, *e)
			continue
		}
		e.Status = domain.OutboxStatusRetrying
		e.NextAttemptAt = now
		res.Requeued++
	}
	return res, nil
}

func (s *memStore) ClaimBatch(_ context.Context, limit int, now time.Time) ([]domain.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "claim")
	s.claims++
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	var ready []*domain.OutboxEvent
	for _, e := range s.rows {
		if e.Status.IsClaimable() && !e.NextAttemptAt.After(now) {
			ready = append(ready, e)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].CreatedAt.Before(ready[j].CreatedAt) })
	if len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]domain.OutboxEvent, 0, len(ready))
	for _, e := range ready {
		at := now
		e.Status = domain.OutboxStatusProcessing
		e.AttemptCount++
		e.LastAttemptAt = &at
		out = append(out, *e)
	}
	return out, nil
}

func (s *memStore) MarkSent(ctx context.Context, id uuid.UUID, attempt int, _ time.Time) error {
	return s.transition(ctx, id, attempt, func(e *domain.OutboxEvent) {
		e.Status = domain.OutboxStatusSent
		e.ErrorMessage = ""
	})
}

func (s *memStore) MarkRetrying(ctx context.Context, id uuid.UUID, attempt int, errMsg string, next time.Time) error {
	return s.transition(ctx, id, attempt, func(e *domain.OutboxEvent) {
		e.Status = domain.OutboxStatusRetrying
		e.ErrorMessage = errMsg
		e.NextAttemptAt = next
	})
}

func (s *memStore) MarkDeadLetter(ctx context.Context, id uuid.UUID, attempt int, errMsg string) error {
	return s.transition(ctx, id, attempt, func(e *domain.OutboxEvent) {
		e.Status = domain.OutboxStatusDeadLetter
		e.ErrorMessage = errMsg
	})
}

// transition ведёт себя как запрос к БД: отменённый ctx — ошибка,
// переход только из processing с тем же attempt_count.
func (s *memStore) transition(ctx context.Context, id uuid.UUID, attempt int, fn func(e *domain.OutboxEvent)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.Status != domain.OutboxStatusProcessing || e.AttemptCount != attempt {
		return errors.New("row is not processing under this claim")
	}
	fn(e)
	return nil
}

// reclaim имитирует другой воркер: stale recovery и повторный claim строки.
func (s *memStore) reclaim(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.rows[id]
	e.Status = domain.OutboxStatusProcessing
	e.AttemptCount++
}

func (s *memStore) get(id uuid.UUID) domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memStore) claimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

type fakeSender struct {
	mu    sync.Mutex
	ok    bool
	err   error
	sent  []string
	block chan struct{}
}

func (f *fakeSender) SendMessage(ctx context.Context, destination, text string) (bool, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, destination)
	return f.ok, f.err
}

// senderFunc позволяет задать поведение отправки прямо в тесте.
type senderFunc func(ctx context.Context, destination, text string) (bool, error)

func (f senderFunc) SendMessage(ctx context.Context, destination, text string) (bool, error) {
	return f(ctx, destination, text)
}

type recordingDLQ struct {
	mu     sync.Mutex
	events []domain.OutboxEvent
}

func (r *recordingDLQ) PublishDeadLetter(_ context.Context, e domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	scopes []string
}

func (r *recordingAlerter) Alert(_ context.Context, scope string, _ error, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, scope)
}

var testNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func newEvent(dest string, age time.Duration) domain.OutboxEvent {
	return domain.NewOutboxEvent("ACME", dest, "hello", "key-"+dest, 0, testNow.Add(-age))
}

func newTestWorker(store Store, sender *fakeSender) *Worker {
	return New(Config{
		Store:  store,
		Sender: sender,
		Now:    func() time.Time { return testNow },
	})
}

// --- Tick ---

func TestTick_Success(t *testing.T) {
	e := newEvent("group-1", time.Minute)
	store := newMemStore(e)
	sender := &fakeSender{ok: true}

	report, err := newTestWorker(store, sender).Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Claimed != 1 || report.Sent != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	got := store.get(e.ID)
	if got.Status != domain.OutboxStatusSent {
		t.Errorf("expected sent, got %s", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("expected attempt_count=1, got %d", got.AttemptCount)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "group-1" {
		t.Errorf("unexpected sends: %v", sender.sent)
	}
}

func TestTick_FailureSchedulesRetry(t *testing.T) {
	e := newEvent("group-1", time.Minute)
	store := newMemStore(e)
	sender := &fakeSender{err: errors.New("gateway timeout")}

	report, err := newTestWorker(store, sender).Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Retrying != 1 {
		t.Errorf("expected 1 retrying, got %+v", report)
	}

	got := store.get(e.ID)
	if got.Status != domain.OutboxStatusRetrying {
		t.Fatalf("expected retrying, got %s", got.Status)
	}
	if want := testNow.Add(30 * time.Second); !got.NextAttemptAt.Equal(want) {
		t.Errorf("next_attempt_at = %v, want %v", got.NextAttemptAt, want)
	}
	if got.ErrorMessage != "gateway timeout" {
		t.Errorf("unexpected error message %q", got.ErrorMessage)
	}
}

func TestTick_FalseReturnIsFailure(t *testing.T) {
	e := newEvent("group-1", time.Minute)
	store := newMemStore(e)

	if _, err := newTestWorker(store, &fakeSender{ok: false}).Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.get(e.ID)
	if got.Status != domain.OutboxStatusRetrying {
		t.Errorf("expected retrying, got %s", got.Status)
	}
	if got.ErrorMessage != ErrNotDelivered.Error() {
		t.Errorf("unexpected error message %q", got.ErrorMessage)
	}
}

func TestTick_BackoffGrowsWithAttempts(t *testing.T) {
	e := newEvent("group-1", time.Minute)
	e.Status = domain.OutboxStatusRetrying
	e.AttemptCount = 3
	store := newMemStore(e)

	if _, err := newTestWorker(store, &fakeSender{err: errors.New("down")}).Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// claim делает attempt 4 → backoff 240s
	got := store.get(e.ID)
	if want := testNow.Add(240 * time.Second); !got.NextAttemptAt.Equal(want) {
		t.Errorf("next_attempt_at = %v, want %v", got.NextAttemptAt, want)
	}
}

func TestTick_DeadLetterAtMaxAttempts(t *testing.T) {
	e := newEvent("group-1", time.Hour)
	e.Status = domain.OutboxStatusRetrying
	e.AttemptCount = domain.DefaultMaxAttempts - 1
	store := newMemStore(e)

	dlq := &recordingDLQ{}
	alerts := &recordingAlerter{}
	w := New(Config{
		Store:      store,
		Sender:     &fakeSender{err: errors.New("chat not found")},
		DeadLetter: dlq,
		Alerter:    alerts,
		Now:        func() time.Time { return testNow },
	})

	report, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.DeadLettered != 1 {
		t.Errorf("expected 1 dead-lettered, got %+v", report)
	}

	got := store.get(e.ID)
	if got.Status != domain.OutboxStatusDeadLetter {
		t.Fatalf("expected dead_letter, got %s", got.Status)
	}
	if got.AttemptCount != domain.DefaultMaxAttempts {
		t.Errorf("expected attempt_count=%d, got %d", domain.DefaultMaxAttempts, got.AttemptCount)
	}
	if len(dlq.events) != 1 || dlq.events[0].ID != e.ID {
		t.Errorf("dead letter should be published, got %v", dlq.events)
	}
	if len(alerts.scopes) != 1 || alerts.scopes[0] != "outbox.dead_letter" {
		t.Errorf("dead letter should be alerted, got %v", alerts.scopes)
	}

	// Следующий tick строку больше не забирает
	report, _ = w.Tick(context.Background())
	if report.Claimed != 0 {
		t.Errorf("dead_letter row must not be claimed again, got %+v", report)
	}
}

func TestTick_NotDueYet(t *testing.T) {
	e := newEvent("group-1", 0)
	e.Status = domain.OutboxStatusRetrying
	e.NextAttemptAt = testNow.Add(time.Minute)
	store := newMemStore(e)

	report, err := newTestWorker(store, &fakeSender{ok: true}).Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Claimed != 0 {
		t.Errorf("future row must not be claimed, got %+v", report)
	}
}

func TestTick_RecoversStaleBeforeClaim(t *testing.T) {
	stuck := newEvent("group-1", time.Hour)
	stuck.Status = domain.OutboxStatusProcessing
	stuck.AttemptCount = 1
	last := testNow.Add(-15 * time.Minute)
	stuck.LastAttemptAt = &last

	fresh := newEvent("group-2", time.Hour)
	fresh.Status = domain.OutboxStatusProcessing
	fresh.AttemptCount = 1
	recent := testNow.Add(-time.Minute)
	fresh.LastAttemptAt = &recent

	store := newMemStore(stuck, fresh)

	report, err := newTestWorker(store, &fakeSender{ok: true}).Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.calls) < 2 || store.calls[0] != "recover" || store.calls[1] != "claim" {
		t.Errorf("recover must run before claim, calls: %v", store.calls)
	}
	if report.Recovered != 1 || report.Sent != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if got := store.get(stuck.ID); got.Status != domain.OutboxStatusSent || got.AttemptCount != 2 {
		t.Errorf("stale row should be re-delivered, got %s attempt=%d", got.Status, got.AttemptCount)
	}
	if got := store.get(fresh.ID); got.Status != domain.OutboxStatusProcessing {
		t.Errorf("recent processing row must be left alone, got %s", got.Status)
	}
}

func TestTick_BatchOrderAndLimit(t *testing.T) {
	oldest := newEvent("g-old", 3*time.Minute)
	middle := newEvent("g-mid", 2*time.Minute)
	newest := newEvent("g-new", time.Minute)
	store := newMemStore(newest, oldest, middle)
	sender := &fakeSender{ok: true}

	w := New(Config{
		Store:     store,
		Sender:    sender,
		BatchSize: 2,
		Now:       func() time.Time { return testNow },
	})

	report, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Claimed != 2 {
		t.Fatalf("expected 2 claimed, got %d", report.Claimed)
	}
	if sender.sent[0] != "g-old" || sender.sent[1] != "g-mid" {
		t.Errorf("expected oldest first, got %v", sender.sent)
	}
	if store.get(newest.ID).Status != domain.OutboxStatusPending {
		t.Error("row beyond batch size should stay pending")
	}
}

func TestTick_ClaimError(t *testing.T) {
	store := newMemStore()
	store.claimErr = errors.New("connection refused")

	_, err := newTestWorker(store, &fakeSender{ok: true}).Tick(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("claim error should propagate, got %v", err)
	}
}

func TestTick_NoOverlap(t *testing.T) {
	store := newMemStore(newEvent("group-1", time.Minute))
	sender := &fakeSender{ok: true, block: make(chan struct{})}
	w := newTestWorker(store, sender)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Tick(context.Background())
	}()

	// Ждём, пока первый tick дойдёт до claim
	deadline := time.Now().Add(2 * time.Second)
	for store.claimCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := w.Tick(context.Background()); !errors.Is(err, ErrTickInProgress) {
		t.Errorf("expected ErrTickInProgress, got %v", err)
	}

	close(sender.block)
	<-done

	if store.claimCount() != 1 {
		t.Errorf("overlapping tick must not claim, got %d claims", store.claimCount())
	}
}

func TestTick_StatusWrittenAfterCancel(t *testing.T) {
	e := newEvent("group-1", time.Minute)
	store := newMemStore(e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Транспорт принял сообщение, а воркер в это время останавливают
	sender := senderFunc(func(context.Context, string, string) (bool, error) {
		cancel()
		return true, nil
	})
	w := New(Config{Store: store, Sender: sender, Now: func() time.Time { return testNow }})

	report, err := w.Tick(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 1 || report.MarkFailed != 0 {
		t.Errorf("delivered row must be marked sent, got %+v", report)
	}
	if got := store.get(e.ID); got.Status != domain.OutboxStatusSent {
		t.Errorf("expected sent, got %s", got.Status)
	}
}

func TestTick_RetryWrittenAfterCancel(t *testing.T) {
	e := newEvent("group-1", time.Minute)
	store := newMemStore(e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := senderFunc(func(context.Context, string, string) (bool, error) {
		cancel()
		return false, errors.New("gateway timeout")
	})
	w := New(Config{Store: store, Sender: sender, Now: func() time.Time { return testNow }})

	report, _ := w.Tick(ctx)
	if report.Retrying != 1 {
		t.Errorf("failed send must be scheduled for retry, got %+v", report)
	}
	if got := store.get(e.ID); got.Status != domain.OutboxStatusRetrying {
		t.Errorf("expected retrying, got %s", got.Status)
	}
}

func TestTick_LateTransitionDoesNotOverrideNewClaim(t *testing.T) {
	e := newEvent("group-1", time.Minute)
	store := newMemStore(e)

	// Пока этот воркер отправляет, строку восстановил и забрал другой
	sender := senderFunc(func(context.Context, string, string) (bool, error) {
		store.reclaim(e.ID)
		return false, errors.New("gateway timeout")
	})
	w := New(Config{Store: store, Sender: sender, Now: func() time.Time { return testNow }})

	report, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.MarkFailed != 1 || report.Retrying != 0 {
		t.Errorf("late transition must be rejected, got %+v", report)
	}
	got := store.get(e.ID)
	if got.Status != domain.OutboxStatusProcessing || got.AttemptCount != 2 {
		t.Errorf("the newer claim must stay intact, got %s attempt=%d", got.Status, got.AttemptCount)
	}
}

func TestTick_StaleFinalAttemptIsDeadLettered(t *testing.T) {
	stuck := newEvent("group-1", time.Hour)
	stuck.Status = domain.OutboxStatusProcessing
	stuck.AttemptCount = domain.DefaultMaxAttempts
	last := testNow.Add(-time.Hour)
	stuck.LastAttemptAt = &last
	store := newMemStore(stuck)

	sender := &fakeSender{ok: true}
	dlq := &recordingDLQ{}
	alerts := &recordingAlerter{}
	w := New(Config{
		Store:      store,
		Sender:     sender,
		DeadLetter: dlq,
		Alerter:    alerts,
		Now:        func() time.Time { return testNow },
	})

	report, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Recovered != 1 || report.DeadLettered != 1 || report.Claimed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if got := store.get(stuck.ID); got.Status != domain.OutboxStatusDeadLetter || got.AttemptCount != domain.DefaultMaxAttempts {
		t.Errorf("expected dead_letter without an extra attempt, got %s attempt=%d", got.Status, got.AttemptCount)
	}
	if len(sender.sent) != 0 {
		t.Errorf("exhausted row must not be sent again, got %v", sender.sent)
	}
	if len(dlq.events) != 1 || len(alerts.scopes) != 1 {
		t.Errorf("dead letter should be published and alerted, got dlq=%d alerts=%v", len(dlq.events), alerts.scopes)
	}
}

// --- Lifecycle ---

func TestWorker_StartWakeStop(t *testing.T) {
	store := newMemStore()
	w := New(Config{
		Store:        store,
		Sender:       &fakeSender{ok: true},
		PollInterval: time.Hour,
		Now:          func() time.Time { return testNow },
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor := func(n int) bool {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if store.claimCount() >= n {
				return true
			}
			time.Sleep(5 * time.Millisecond)
		}
		return false
	}

	if !waitFor(1) {
		t.Fatal("first tick should run immediately")
	}

	w.Wake()
	if !waitFor(2) {
		t.Error("wake should trigger a tick before the poll interval")
	}

	w.Stop()
	if !w.IsStopped() {
		t.Error("worker should report stopped")
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("restart after stop should fail, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("ошибка", 3); got != "о" {
		t.Errorf("truncate should not split runes, got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
}
