// Package notify превращает решение об уведомлении в записи outbox.
//
// Для каждой чат-группы клиента строится одно сообщение и ключ
// идемпотентности:
//   - change-уведомления дедуплицируются по точному тексту сообщения;
//   - heartbeat-уведомления — по часовому слоту, чтобы за час не ушло
//     больше одного heartbeat даже при повторных run.
package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/socialwatch/internal/change"
	"github.com/shaiso/socialwatch/internal/domain"
)

// DefaultMaxItems — сколько ссылок на новый контент попадает в сообщение на платформу.
const DefaultMaxItems = 10

// Store — outbox, в который ставятся уведомления.
type Store interface {
	Enqueue(ctx context.Context, events []domain.OutboxEvent) (domain.EnqueueResult, error)
}

// Request — всё, что нужно для построения уведомлений клиента.
type Request struct {
	Client     domain.ClientRef
	Descriptor change.Descriptor
	Decision   change.Decision

	// Additions — новый контент по платформам (для текста сообщения).
	Additions map[domain.Platform][]domain.ContentItem

	// Slot — часовой слот run (ключ дедупликации heartbeat).
	Slot string

	// Now — время run.
	Now time.Time
}

// Builder строит OutboxEvent'ы.
type Builder struct {
	// MaxAttempts — лимит попыток доставки (default: 5).
	MaxAttempts int

	// MaxItems — лимит ссылок на платформу (default: 10).
	MaxItems int
}

// Build возвращает по одному событию на каждую чат-группу клиента.
// Если решение — не уведомлять, или у клиента нет групп, результат пустой.
func (b Builder) Build(req Request) []domain.OutboxEvent {
	if !req.Decision.Notify || len(req.Client.Destinations) == 0 {
		return nil
	}

	message := b.render(req)

	events := make([]domain.OutboxEvent, 0, len(req.Client.Destinations))
	seen := make(map[string]struct{}, len(req.Client.Destinations))
	for _, dest := range req.Client.Destinations {
		dest = strings.TrimSpace(dest)
		if dest == "" {
			continue
		}
		if _, dup := seen[dest]; dup {
			continue
		}
		seen[dest] = struct{}{}

		var key string
		if req.Decision.Reason == change.ReasonHeartbeat {
			key = HeartbeatKey(req.Client.ID, dest, req.Slot)
		} else {
			key = MessageKey(req.Client.ID, dest, message)
		}

		events = append(events, domain.NewOutboxEvent(req.Client.ID, dest, message, key, b.MaxAttempts, req.Now))
	}
	return events
}

// MessageKey — ключ идемпотентности change-уведомления.
func MessageKey(clientID, destination, message string) string {
	return hashKey(clientID, destination, message)
}

// HeartbeatKey — ключ идемпотентности heartbeat-уведомления.
func HeartbeatKey(clientID, destination, slot string) string {
	return hashKey(clientID, destination, "slot:"+slot)
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Enqueue ставит события в outbox. Пустой список — no-op.
func Enqueue(ctx context.Context, store Store, events []domain.OutboxEvent) (domain.EnqueueResult, error) {
	if len(events) == 0 {
		return domain.EnqueueResult{}, nil
	}
	res, err := store.Enqueue(ctx, events)
	if err != nil {
		return res, fmt.Errorf("enqueue notifications: %w", err)
	}
	return res, nil
}

// render формирует простой текст. Шаблонизация сообщений — забота транспорта.
func (b Builder) render(req Request) string {
	maxItems := b.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	var sb strings.Builder
	name := req.Client.DisplayName()

	if req.Decision.Reason == change.ReasonHeartbeat {
		fmt.Fprintf(&sb, "%s: no new content (%s)\n", name, req.Slot)
		for _, p := range req.Client.EnabledPlatforms() {
			fmt.Fprintf(&sb, "%s: %d total\n", p, req.Descriptor.Platform(p).Current)
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	fmt.Fprintf(&sb, "%s: content update\n", name)
	for _, p := range domain.Platforms {
		pd := req.Descriptor.Platform(p)
		if !pd.Changed() {
			continue
		}
		if pd.Added > 0 {
			fmt.Fprintf(&sb, "%s: +%d new\n", p, pd.Added)
			items := req.Additions[p]
			if len(items) > pd.Added {
				items = items[:pd.Added]
			}
			if len(items) > maxItems {
				items = items[:maxItems]
			}
			for _, it := range items {
				ref := it.URL
				if ref == "" {
					ref = it.ID
				}
				fmt.Fprintf(&sb, "  - %s\n", ref)
			}
		}
		if pd.Deleted > 0 {
			fmt.Fprintf(&sb, "%s: -%d removed", p, pd.Deleted)
			if pd.Class == change.DeletionSyncAnomaly {
				sb.WriteString(" (possible sync anomaly)")
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
