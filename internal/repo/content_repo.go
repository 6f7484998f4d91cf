package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/socialwatch/internal/domain"
)

// ContentRepo — чтение собранного контента (content_items).
//
// Запись в таблицу делает внешний скрейпер; socialwatch только считает.
// Элемент с missing_since не NULL скрейпер больше не видит на платформе.
type ContentRepo struct {
	pool *pgxpool.Pool
}

// NewContentRepo создаёт новый ContentRepo.
func NewContentRepo(pool *pgxpool.Pool) *ContentRepo {
	return &ContentRepo{pool: pool}
}

// Counts возвращает текущее количество видимого контента по платформам.
func (r *ContentRepo) Counts(ctx context.Context, clientID string) (domain.Counts, error) {
	var counts domain.Counts

	query := `
		SELECT platform, count(*)
		FROM content_items
		WHERE client_id = $1 AND missing_since IS NULL
		GROUP BY platform
	`
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return counts, fmt.Errorf("count content: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var platform string
		var n int
		if err := rows.Scan(&platform, &n); err != nil {
			return counts, fmt.Errorf("scan content count: %w", err)
		}
		counts.Set(domain.Platform(platform), n)
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("iterate content counts: %w", err)
	}
	return counts, nil
}

// RecentItems возвращает последние собранные элементы платформы.
func (r *ContentRepo) RecentItems(ctx context.Context, clientID string, platform domain.Platform, limit int) ([]domain.ContentItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT platform, item_id, url, caption, published_at
		FROM content_items
		WHERE client_id = $1 AND platform = $2 AND missing_since IS NULL
		ORDER BY scraped_at DESC, published_at DESC NULLS LAST
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, clientID, string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("recent content: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		var it domain.ContentItem
		var p string
		var published *time.Time
		if err := rows.Scan(&p, &it.ID, &it.URL, &it.Caption, &published); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		it.Platform = domain.Platform(p)
		if published != nil {
			it.PublishedAt = *published
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}

// MissingIDs возвращает ID элементов, недавно пропавших с платформы.
func (r *ContentRepo) MissingIDs(ctx context.Context, clientID string, platform domain.Platform, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT item_id
		FROM content_items
		WHERE client_id = $1 AND platform = $2 AND missing_since IS NOT NULL
		ORDER BY missing_since DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, clientID, string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("missing content: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan missing id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
