package repo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/socialwatch/internal/domain"
)

// OutboxRepo — репозиторий notification_outbox.
type OutboxRepo struct {
	pool *pgxpool.Pool
}

// NewOutboxRepo создаёт новый OutboxRepo.
func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

const outboxColumns = `outbox_id, client_id, destination, message, idempotency_key, status,
       attempt_count, max_attempts, next_attempt_at, created_at, last_attempt_at,
       sent_at, error_message`

// Enqueue вставляет записи в одной транзакции.
// Запись с уже существующим idempotency_key пропускается и считается дубликатом.
func (r *OutboxRepo) Enqueue(ctx context.Context, events []domain.OutboxEvent) (domain.EnqueueResult, error) {
	var res domain.EnqueueResult
	if len(events) == 0 {
		return res, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO notification_outbox
		    (outbox_id, client_id, destination, message, idempotency_key, status,
		     attempt_count, max_attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	for i := range events {
		e := &events[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		maxAttempts := e.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = domain.DefaultMaxAttempts
		}

		tag, err := tx.Exec(ctx, query,
			e.ID,
			e.ClientID,
			e.Destination,
			e.Message,
			e.IdempotencyKey,
			domain.OutboxStatusPending,
			maxAttempts,
			e.NextAttemptAt,
			e.CreatedAt,
		)
		if err != nil {
			return domain.EnqueueResult{}, fmt.Errorf("insert outbox row: %w", err)
		}
		if tag.RowsAffected() == 1 {
			res.Inserted++
		} else {
			res.Duplicated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.EnqueueResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// ClaimBatch атомарно забирает до limit готовых строк.
//
// Строки, заблокированные другим воркером, пропускаются (SKIP LOCKED),
// поэтому параллельные воркеры не получают одну строку дважды.
// Забранные строки переходят в processing с attempt_count+1.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		WITH due AS (
		    SELECT outbox_id
		    FROM notification_outbox
		    WHERE status IN ('pending', 'retrying')
		      AND next_attempt_at <= $1
		    ORDER BY created_at ASC
		    LIMIT $2
		    FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_outbox o
		SET status = 'processing',
		    attempt_count = o.attempt_count + 1,
		    last_attempt_at = $1
		FROM due
		WHERE o.outbox_id = due.outbox_id
		RETURNING o.outbox_id, o.client_id, o.destination, o.message, o.idempotency_key, o.status,
		          o.attempt_count, o.max_attempts, o.next_attempt_at, o.created_at, o.last_attempt_at,
		          o.sent_at, o.error_message
	`
	rows, err := tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	events, err := collectOutbox(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	// RETURNING не гарантирует порядок
	sortByCreated(events)
	return events, nil
}

// staleFinalAttemptMsg — error_message строки, зависшей на последней попытке.
const staleFinalAttemptMsg = "processing timed out on the final attempt"

// RecoverStale разбирает зависшие processing-строки в одной транзакции:
// исчерпавшие попытки уходят в dead_letter, остальные возвращаются в retrying.
func (r *OutboxRepo) RecoverStale(ctx context.Context, staleBefore, now time.Time) (domain.RecoverResult, error) {
	var res domain.RecoverResult

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	deadQuery := `
		UPDATE notification_outbox
		SET status = 'dead_letter', error_message = COALESCE(error_message, $2)
		WHERE status = 'processing' AND last_attempt_at < $1
		  AND attempt_count >= max_attempts
		RETURNING ` + outboxColumns
	rows, err := tx.Query(ctx, deadQuery, staleBefore, staleFinalAttemptMsg)
	if err != nil {
		return res, fmt.Errorf("dead-letter stale outbox rows: %w", err)
	}
	dead, err := collectOutbox(rows)
	if err != nil {
		return res, err
	}

	retryQuery := `
		UPDATE notification_outbox
		SET status = 'retrying', next_attempt_at = $2
		WHERE status = 'processing' AND last_attempt_at < $1
	`
	tag, err := tx.Exec(ctx, retryQuery, staleBefore, now)
	if err != nil {
		return res, fmt.Errorf("recover stale outbox rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit tx: %w", err)
	}

	sortByCreated(dead)
	res.Requeued = int(tag.RowsAffected())
	res.DeadLettered = dead
	return res, nil
}

// Переходы из processing фиксируются по (outbox_id, attempt_count):
// attempt — значение attempt_count из claim. Если строку успели
// восстановить и забрать заново, запоздавший переход вернёт ErrInvalidState.

// MarkSent фиксирует успешную доставку.
func (r *OutboxRepo) MarkSent(ctx context.Context, id uuid.UUID, attempt int, at time.Time) error {
	query := `
		UPDATE notification_outbox
		SET status = 'sent', sent_at = $3, error_message = NULL
		WHERE outbox_id = $1 AND attempt_count = $2 AND status = 'processing'
	`
	return r.transition(ctx, "mark sent", query, id, attempt, at)
}

// MarkRetrying планирует повторную попытку.
func (r *OutboxRepo) MarkRetrying(ctx context.Context, id uuid.UUID, attempt int, errMsg string, nextAttemptAt time.Time) error {
	query := `
		UPDATE notification_outbox
		SET status = 'retrying', error_message = $3, next_attempt_at = $4
		WHERE outbox_id = $1 AND attempt_count = $2 AND status = 'processing'
	`
	return r.transition(ctx, "mark retrying", query, id, attempt, nullString(errMsg), nextAttemptAt)
}

// MarkDeadLetter переводит строку в терминальный dead_letter.
func (r *OutboxRepo) MarkDeadLetter(ctx context.Context, id uuid.UUID, attempt int, errMsg string) error {
	query := `
		UPDATE notification_outbox
		SET status = 'dead_letter', error_message = $3
		WHERE outbox_id = $1 AND attempt_count = $2 AND status = 'processing'
	`
	return r.transition(ctx, "mark dead letter", query, id, attempt, nullString(errMsg))
}

func (r *OutboxRepo) transition(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidState)
	}
	return nil
}

// --- Операторские операции ---

// OutboxFilter — параметры фильтрации списка outbox.
type OutboxFilter struct {
	Status   domain.OutboxStatus
	ClientID string
	Limit    int
	Offset   int
}

// GetByID возвращает строку outbox по ID.
func (r *OutboxRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM notification_outbox WHERE outbox_id = $1`
	e, err := scanOutbox(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List возвращает строки outbox, новые первыми.
func (r *OutboxRepo) List(ctx context.Context, filter OutboxFilter) ([]domain.OutboxEvent, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT ` + outboxColumns + `
		FROM notification_outbox
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR client_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.ClientID),
		limit,
		max(filter.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return collectOutbox(rows)
}

// CountByStatus возвращает количество строк по статусам.
func (r *OutboxRepo) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM notification_outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OutboxStatus]int, len(domain.OutboxStatuses))
	for _, s := range domain.OutboxStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status domain.OutboxStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Requeue возвращает dead_letter строку в pending со сброшенным счётчиком попыток.
func (r *OutboxRepo) Requeue(ctx context.Context, id uuid.UUID, now time.Time) (*domain.OutboxEvent, error) {
	query := `
		UPDATE notification_outbox
		SET status = 'pending', attempt_count = 0, next_attempt_at = $2,
		    last_attempt_at = NULL, error_message = NULL
		WHERE outbox_id = $1 AND status = 'dead_letter'
		RETURNING ` + outboxColumns

	e, err := scanOutbox(r.pool.QueryRow(ctx, query, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		// Либо строки нет, либо она не в dead_letter
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// --- Helpers ---

// scanOutbox сканирует одну строку; pgx.ErrNoRows возвращается как есть.
func scanOutbox(row pgx.Row) (*domain.OutboxEvent, error) {
	var e domain.OutboxEvent
	var errMsg *string

	err := row.Scan(
		&e.ID,
		&e.ClientID,
		&e.Destination,
		&e.Message,
		&e.IdempotencyKey,
		&e.Status,
		&e.AttemptCount,
		&e.MaxAttempts,
		&e.NextAttemptAt,
		&e.CreatedAt,
		&e.LastAttemptAt,
		&e.SentAt,
		&errMsg,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan outbox row: %w", err)
	}
	if errMsg != nil {
		e.ErrorMessage = *errMsg
	}
	return &e, nil
}

func collectOutbox(rows pgx.Rows) ([]domain.OutboxEvent, error) {
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return events, nil
}

func sortByCreated(events []domain.OutboxEvent) {
	slices.SortStableFunc(events, func(a, b domain.OutboxEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
