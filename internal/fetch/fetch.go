// Package fetch запускает сбор контента во внешнем скрейпер-сервисе.
//
// Сам скрейпинг вне socialwatch: сервис собирает посты клиента на платформе
// и пишет их в content_items. Orchestrator только вызывает fetch и затем
// читает счётчики.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/socialwatch/internal/domain"
)

const defaultTimeout = 5 * time.Minute

// ErrFetchFailed — скрейпер вернул ошибку.
var ErrFetchFailed = errors.New("platform fetch failed")

// Fetcher запускает сбор контента клиента на платформе.
type Fetcher interface {
	Fetch(ctx context.Context, clientID string, platform domain.Platform) error
}

// HTTPFetcher вызывает скрейпер по HTTP:
//
//	POST {BaseURL}/v1/fetch/{platform}/{clientID}
//
// Вызов синхронный: 2xx означает, что content_items обновлены.
type HTTPFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPFetcher создаёт HTTPFetcher.
func NewHTTPFetcher(baseURL, token string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Fetch реализует Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, clientID string, platform domain.Platform) error {
	endpoint := fmt.Sprintf("%s/v1/fetch/%s/%s", f.BaseURL, url.PathEscape(string(platform)), url.PathEscape(clientID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s/%s: %w", platform, clientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s/%s: status %d: %s", ErrFetchFailed, platform, clientID, resp.StatusCode, bytes.TrimSpace(body))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Noop — fetcher для окружений без скрейпера: счётчики читаются как есть.
type Noop struct{}

// Fetch реализует Fetcher.
func (Noop) Fetch(context.Context, string, domain.Platform) error { return nil }
