package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/socialwatch/internal/domain"
)

// StateRepo — репозиторий scheduler_state.
type StateRepo struct {
	pool *pgxpool.Pool
}

// NewStateRepo создаёт новый StateRepo.
func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

const stateColumns = `client_id, last_count_instagram, last_count_tiktok,
       last_notified_at, last_notified_slot, updated_at`

// LoadStates загружает состояние одним запросом ровно для переданных клиентов.
// Клиенты без строки в результат не попадают.
func (r *StateRepo) LoadStates(ctx context.Context, clientIDs []string) (map[string]domain.SchedulerState, error) {
	states := make(map[string]domain.SchedulerState, len(clientIDs))
	if len(clientIDs) == 0 {
		return states, nil
	}

	query := `SELECT ` + stateColumns + ` FROM scheduler_state WHERE client_id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("load scheduler state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states[s.ClientID] = *s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduler state: %w", err)
	}
	return states, nil
}

// Get возвращает состояние одного клиента.
func (r *StateRepo) Get(ctx context.Context, clientID string) (*domain.SchedulerState, error) {
	query := `SELECT ` + stateColumns + ` FROM scheduler_state WHERE client_id = $1`
	s, err := scanState(r.pool.QueryRow(ctx, query, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Upsert сохраняет состояние клиента.
func (r *StateRepo) Upsert(ctx context.Context, s domain.SchedulerState) error {
	query := `
		INSERT INTO scheduler_state
		    (client_id, last_count_instagram, last_count_tiktok, last_notified_at, last_notified_slot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id) DO UPDATE SET
		    last_count_instagram = EXCLUDED.last_count_instagram,
		    last_count_tiktok    = EXCLUDED.last_count_tiktok,
		    last_notified_at     = EXCLUDED.last_notified_at,
		    last_notified_slot   = EXCLUDED.last_notified_slot,
		    updated_at           = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		s.ClientID,
		s.LastCounts.Instagram,
		s.LastCounts.TikTok,
		s.LastNotifiedAt,
		nullString(s.LastNotifiedSlot),
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scheduler state: %w", err)
	}
	return nil
}

func scanState(row pgx.Row) (*domain.SchedulerState, error) {
	var s domain.SchedulerState
	var slot *string

	err := row.Scan(
		&s.ClientID,
		&s.LastCounts.Instagram,
		&s.LastCounts.TikTok,
		&s.LastNotifiedAt,
		&slot,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan scheduler state: %w", err)
	}
	if slot != nil {
		s.LastNotifiedSlot = *slot
	}
	return &s, nil
}
