package mq

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTopology_CoversAllQueues(t *testing.T) {
	want := map[Queue]Exchange{
		QueueOutboxPending: ExchangeOutbox,
		QueueAlerts:        ExchangeAlerts,
		QueueDLQOutbox:     ExchangeDLQ,
	}
	if len(topology) != len(want) {
		t.Fatalf("expected %d bindings, got %d", len(want), len(topology))
	}
	for _, b := range topology {
		if want[b.queue] != b.exchange {
			t.Errorf("queue %s bound to %s, want %s", b.queue, b.exchange, want[b.queue])
		}
	}

	info := TopologyInfo()
	for q := range want {
		if !strings.Contains(info, string(q)) {
			t.Errorf("topology info should mention %s", q)
		}
	}
}

func TestParsePayload_AfterWireRoundTrip(t *testing.T) {
	id := uuid.New()
	msg := newMessage(MessageTypeOutboxDeadLetter, DeadLetterPayload{
		OutboxID:     id,
		ClientID:     "ACME",
		AttemptCount: 5,
		Error:        "chat not found",
	})

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Так сообщение приходит в consumer: payload — map[string]any
	var received Message
	if err := json.Unmarshal(body, &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.Type != MessageTypeOutboxDeadLetter {
		t.Errorf("unexpected type %s", received.Type)
	}

	p, err := ParsePayload[DeadLetterPayload](&received)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if p.OutboxID != id || p.ClientID != "ACME" || p.AttemptCount != 5 {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestJitter_StaysWithinHalfToFull(t *testing.T) {
	for _, d := range []time.Duration{minReconnectDelay, 4 * time.Second, maxReconnectDelay} {
		for range 100 {
			got := jitter(d)
			if got < d/2 || got > d {
				t.Fatalf("jitter(%v) = %v, want [%v, %v]", d, got, d/2, d)
			}
		}
	}
	if got := jitter(time.Nanosecond); got != time.Nanosecond {
		t.Errorf("jitter(1ns) = %v", got)
	}
}
