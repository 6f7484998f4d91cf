package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/socialwatch/internal/change"
	"github.com/shaiso/socialwatch/internal/domain"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func changeRequest() Request {
	prev := domain.Counts{Instagram: 5, TikTok: 3}
	cur := domain.Counts{Instagram: 7, TikTok: 3}
	return Request{
		Client: domain.ClientRef{
			ID:               "ACME",
			Name:             "Acme",
			InstagramEnabled: true,
			TikTokEnabled:    true,
			Destinations:     []string{"group-1", "group-2"},
		},
		Descriptor: change.Compute(prev, cur, nil, change.DefaultThresholds()),
		Decision:   change.Decision{Notify: true, Reason: change.ReasonChanges},
		Additions: map[domain.Platform][]domain.ContentItem{
			domain.PlatformInstagram: {
				{ID: "p1", URL: "https://instagram.com/p/p1"},
				{ID: "p2", URL: "https://instagram.com/p/p2"},
				{ID: "p3", URL: "https://instagram.com/p/p3"},
			},
		},
		Slot: change.Slot(testNow, time.UTC),
		Now:  testNow,
	}
}

func TestBuild_OneEventPerDestination(t *testing.T) {
	events := Builder{}.Build(changeRequest())

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Destination != "group-1" || events[1].Destination != "group-2" {
		t.Errorf("unexpected destinations: %s, %s", events[0].Destination, events[1].Destination)
	}
	if events[0].IdempotencyKey == events[1].IdempotencyKey {
		t.Error("keys must differ per destination")
	}
	for _, e := range events {
		if e.Status != domain.OutboxStatusPending {
			t.Errorf("expected pending, got %s", e.Status)
		}
		if e.MaxAttempts != domain.DefaultMaxAttempts {
			t.Errorf("expected default max attempts, got %d", e.MaxAttempts)
		}
	}
}

func TestBuild_AdditionsCappedToDiff(t *testing.T) {
	events := Builder{}.Build(changeRequest())
	msg := events[0].Message

	if !strings.Contains(msg, "instagram: +2 new") {
		t.Errorf("message should report +2, got:\n%s", msg)
	}
	if strings.Contains(msg, "/p3") {
		t.Errorf("items beyond diff must be dropped, got:\n%s", msg)
	}
	if strings.Contains(msg, "tiktok") {
		t.Errorf("unchanged platform should not be mentioned, got:\n%s", msg)
	}
}

func TestBuild_ChangeKeyDependsOnMessage(t *testing.T) {
	a := Builder{}.Build(changeRequest())

	// Тот же run повторно — те же ключи
	b := Builder{}.Build(changeRequest())
	if a[0].IdempotencyKey != b[0].IdempotencyKey {
		t.Error("same change message must produce the same key")
	}

	other := changeRequest()
	other.Descriptor = change.Compute(domain.Counts{Instagram: 5}, domain.Counts{Instagram: 6}, nil, change.Thresholds{})
	c := Builder{}.Build(other)
	if a[0].IdempotencyKey == c[0].IdempotencyKey {
		t.Error("different message must produce a different key")
	}
}

func TestBuild_HeartbeatKeyDependsOnSlot(t *testing.T) {
	req := changeRequest()
	req.Descriptor = change.Compute(domain.Counts{Instagram: 7}, domain.Counts{Instagram: 7}, nil, change.Thresholds{})
	req.Decision = change.Decision{Notify: true, Reason: change.ReasonHeartbeat}

	first := Builder{}.Build(req)

	// Другое время в том же часе — тот же ключ
	req.Now = testNow.Add(20 * time.Minute)
	sameSlot := Builder{}.Build(req)
	if first[0].IdempotencyKey != sameSlot[0].IdempotencyKey {
		t.Error("heartbeats in the same slot must share a key")
	}
	if first[0].IdempotencyKey != HeartbeatKey("ACME", "group-1", "2026-10-16T12") {
		t.Error("heartbeat key should be derived from client, destination and slot")
	}

	req.Slot = "2026-10-16T13"
	nextSlot := Builder{}.Build(req)
	if first[0].IdempotencyKey == nextSlot[0].IdempotencyKey {
		t.Error("next slot must produce a new key")
	}
}

func TestBuild_NoNotifyOrNoDestinations(t *testing.T) {
	req := changeRequest()
	req.Decision = change.Decision{Reason: change.ReasonNone}
	if got := (Builder{}).Build(req); len(got) != 0 {
		t.Errorf("expected no events without notify decision, got %d", len(got))
	}

	req = changeRequest()
	req.Client.Destinations = []string{" ", "group-1", "group-1"}
	if got := (Builder{}).Build(req); len(got) != 1 {
		t.Errorf("blank and duplicate destinations should be skipped, got %d", len(got))
	}
}

func TestBuild_AnomalyNote(t *testing.T) {
	req := changeRequest()
	req.Descriptor = change.Compute(
		domain.Counts{Instagram: 10},
		domain.Counts{Instagram: 4},
		map[domain.Platform][]string{domain.PlatformInstagram: {"gone"}},
		change.DefaultThresholds(),
	)
	events := Builder{}.Build(req)
	if !strings.Contains(events[0].Message, "-6 removed (possible sync anomaly)") {
		t.Errorf("unexpected message:\n%s", events[0].Message)
	}
}

type fakeStore struct {
	got []domain.OutboxEvent
	err error
}

func (f *fakeStore) Enqueue(_ context.Context, events []domain.OutboxEvent) (domain.EnqueueResult, error) {
	f.got = append(f.got, events...)
	return domain.EnqueueResult{Inserted: len(events)}, f.err
}

func TestEnqueue(t *testing.T) {
	store := &fakeStore{}

	res, err := Enqueue(context.Background(), store, nil)
	if err != nil || res.Inserted != 0 || len(store.got) != 0 {
		t.Error("empty batch should not touch the store")
	}

	events := Builder{}.Build(changeRequest())
	res, err = Enqueue(context.Background(), store, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != 2 {
		t.Errorf("expected 2 inserted, got %d", res.Inserted)
	}

	store.err = errors.New("db down")
	if _, err := Enqueue(context.Background(), store, events); err == nil {
		t.Error("store error should propagate")
	}
}
