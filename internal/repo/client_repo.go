package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/socialwatch/internal/domain"
)

// ClientRepo — реестр клиентов (только чтение).
type ClientRepo struct {
	pool *pgxpool.Pool
}

// NewClientRepo создаёт новый ClientRepo.
func NewClientRepo(pool *pgxpool.Pool) *ClientRepo {
	return &ClientRepo{pool: pool}
}

// ListActive возвращает активных клиентов с нормализованными ID.
// Если после нормализации ID совпадают, остаётся первый.
func (r *ClientRepo) ListActive(ctx context.Context) ([]domain.ClientRef, error) {
	query := `
		SELECT client_id, display_name, instagram_enabled, tiktok_enabled, destinations
		FROM clients
		WHERE active
		ORDER BY client_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active clients: %w", err)
	}
	defer rows.Close()

	var clients []domain.ClientRef
	seen := make(map[string]struct{})
	for rows.Next() {
		var c domain.ClientRef
		if err := rows.Scan(&c.ID, &c.Name, &c.InstagramEnabled, &c.TikTokEnabled, &c.Destinations); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		c.ID = domain.NormalizeClientID(c.ID)
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}
