package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/shaiso/socialwatch/internal/change"
	"github.com/shaiso/socialwatch/internal/domain"
	"github.com/shaiso/socialwatch/internal/notify"
	"github.com/shaiso/socialwatch/internal/telemetry"
)

// runContext — неизменяемые данные run, общие для всех клиентов.
type runContext struct {
	runID        string
	now          time.Time
	slot         string
	states       map[string]domain.SchedulerState
	conservative bool
	logger       *slog.Logger
}

// processClientSafe изолирует панику клиента от остальных.
func (o *Orchestrator) processClientSafe(ctx context.Context, rc *runContext, client domain.ClientRef) (res ClientResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrClientPanic, r)
			rc.logger.Error("client processing panicked",
				"client_id", client.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			o.alert(ctx, "client", err, "run_id", rc.runID, "client_id", client.ID)
			res = ClientResult{ClientID: client.ID, Outcome: OutcomeFailed, Reason: change.ReasonNone, Error: err.Error()}
		}
		telemetry.ClientsProcessed.WithLabelValues(string(res.Outcome)).Inc()
	}()
	return o.processClient(ctx, rc, client)
}

// processClient — fetch → counts → diff → решение → outbox → state.
func (o *Orchestrator) processClient(ctx context.Context, rc *runContext, client domain.ClientRef) ClientResult {
	logger := telemetry.WithClientID(rc.logger, client.ID)
	res := ClientResult{ClientID: client.ID, Outcome: OutcomeOK, Reason: change.ReasonNone}

	fail := func(scope string, err error) ClientResult {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		logger.Error("client processing failed", "stage", scope, "error", err)
		o.alert(ctx, scope, err, "run_id", rc.runID, "client_id", client.ID)
		return res
	}

	// Ошибка одной платформы не мешает посчитать остальное
	for _, p := range client.EnabledPlatforms() {
		if err := o.fetcher.Fetch(ctx, client.ID, p); err != nil {
			res.FetchErrors++
			logger.Warn("fetch failed", "platform", p, "error", err)
			o.alert(ctx, "fetch", err, "run_id", rc.runID, "client_id", client.ID, "platform", string(p))
		}
	}

	cur, err := o.content.Counts(ctx, client.ID)
	if err != nil {
		return fail("counts", fmt.Errorf("count content: %w", err))
	}

	state, known := rc.states[client.ID]
	prev := state.LastCounts
	if rc.conservative || !known {
		// Базовая линия: без прошлого состояния весь контент не считается новым
		prev = cur
	}
	for _, p := range domain.Platforms {
		if !client.Enabled(p) {
			cur.Set(p, prev.Get(p))
		}
	}

	missing := make(map[domain.Platform][]string)
	for _, p := range domain.Platforms {
		if cur.Get(p) >= prev.Get(p) {
			continue
		}
		ids, err := o.content.MissingIDs(ctx, client.ID, p, o.missingIDsLimit)
		if err != nil {
			logger.Warn("failed to load missing ids", "platform", p, "error", err)
			continue
		}
		missing[p] = ids
	}

	desc := change.Compute(prev, cur, missing, o.thresholds)
	res.HasChanges = desc.HasChanges
	if desc.HasAnomaly() {
		res.Anomaly = true
		logger.Warn("deletion spike looks like a sync anomaly",
			"instagram_deleted", desc.Instagram.Deleted,
			"tiktok_deleted", desc.TikTok.Deleted,
		)
	}

	var lastNotified *time.Time
	if known {
		lastNotified = state.LastNotifiedAt
	}
	decision := change.Decide(change.DecisionInput{
		HasChanges:     desc.HasChanges,
		StateKnown:     !rc.conservative,
		LastNotifiedAt: lastNotified,
		Now:            rc.now,
		Interval:       o.interval,
		Window:         o.window,
	})
	res.Reason = decision.Reason

	var events []domain.OutboxEvent
	if decision.Notify {
		events = o.builder.Build(notify.Request{
			Client:     client,
			Descriptor: desc,
			Decision:   decision,
			Additions:  o.additions(ctx, logger, client, &desc),
			Slot:       rc.slot,
			Now:        rc.now,
		})

		enq, err := notify.Enqueue(ctx, o.outbox, events)
		if err != nil {
			// Без записи в outbox состояние не двигаем: следующий run повторит
			return fail("enqueue", err)
		}
		res.Enqueued = enq.Inserted
		res.Duplicated = enq.Duplicated
		telemetry.OutboxEnqueued.WithLabelValues("inserted").Add(float64(enq.Inserted))
		telemetry.OutboxEnqueued.WithLabelValues("duplicate").Add(float64(enq.Duplicated))
	}

	if rc.conservative {
		logger.Debug("conservative mode, state not saved")
		return res
	}

	next := domain.SchedulerState{
		ClientID:         client.ID,
		LastCounts:       cur,
		LastNotifiedAt:   lastNotified,
		LastNotifiedSlot: state.LastNotifiedSlot,
		UpdatedAt:        rc.now,
	}
	if len(events) > 0 {
		next.MarkNotified(rc.now, rc.slot)
	}
	if err := o.states.Upsert(ctx, next); err != nil {
		return fail("state_save", fmt.Errorf("save scheduler state: %w", err))
	}
	res.StateSaved = true

	logger.Debug("client processed",
		"reason", decision.Reason,
		"instagram", cur.Instagram,
		"tiktok", cur.TikTok,
		"enqueued", res.Enqueued,
		"duplicated", res.Duplicated,
	)
	return res
}

// additions загружает новый контент для текста сообщения.
// Ошибка не критична: сообщение уйдёт без ссылок.
func (o *Orchestrator) additions(ctx context.Context, logger *slog.Logger, client domain.ClientRef, desc *change.Descriptor) map[domain.Platform][]domain.ContentItem {
	maxItems := o.builder.MaxItems
	if maxItems <= 0 {
		maxItems = notify.DefaultMaxItems
	}

	out := make(map[domain.Platform][]domain.ContentItem)
	for _, p := range domain.Platforms {
		added := desc.Platform(p).Added
		if added <= 0 {
			continue
		}
		items, err := o.content.RecentItems(ctx, client.ID, p, min(added, maxItems))
		if err != nil {
			logger.Warn("failed to load new items", "platform", p, "error", err)
			continue
		}
		out[p] = items
	}
	return out
}
