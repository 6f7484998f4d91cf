package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (CLI не импортирует internal/api) ---

// OutboxResponse — строка outbox из API.
type OutboxResponse struct {
	ID             string `json:"id"`
	ClientID       string `json:"client_id"`
	Destination    string `json:"destination"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	AttemptCount   int    `json:"attempt_count"`
	MaxAttempts    int    `json:"max_attempts"`
	NextAttemptAt  string `json:"next_attempt_at"`
	CreatedAt      string `json:"created_at"`
	LastAttemptAt  string `json:"last_attempt_at,omitempty"`
	SentAt         string `json:"sent_at,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// OutboxStatsResponse — количество строк outbox по статусам.
type OutboxStatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// StateResponse — scheduler_state клиента.
type StateResponse struct {
	ClientID   string `json:"client_id"`
	LastCounts struct {
		Instagram int `json:"instagram"`
		TikTok    int `json:"tiktok"`
	} `json:"last_counts"`
	LastNotifiedAt   string `json:"last_notified_at,omitempty"`
	LastNotifiedSlot string `json:"last_notified_slot,omitempty"`
	UpdatedAt        string `json:"updated_at"`
}

// RunReport — отчёт run.
type RunReport struct {
	RunID        string `json:"run_id"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
	Skipped      bool   `json:"skipped"`
	SkipReason   string `json:"skip_reason,omitempty"`
	Conservative bool   `json:"conservative"`
	Clients      int    `json:"clients"`
	Admitted     int    `json:"admitted"`
	NotAdmitted  int    `json:"not_admitted"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Enqueued     int    `json:"enqueued"`
	Duplicated   int    `json:"duplicated"`
	Error        string `json:"error,omitempty"`
}

// RunStatusResponse — фаза orchestrator и последний отчёт.
type RunStatusResponse struct {
	Phase      string     `json:"phase"`
	LastReport *RunReport `json:"last_report,omitempty"`
}

// ListOutboxOpts — параметры фильтрации outbox.
type ListOutboxOpts struct {
	Status   string
	ClientID string
	Limit    int
	Offset   int
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент операторского API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// --- Outbox ---

// ListOutbox возвращает строки outbox.
func (c *Client) ListOutbox(ctx context.Context, opts ListOutboxOpts) ([]OutboxResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.ClientID != "" {
		params.Set("client_id", opts.ClientID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/outbox"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var events []OutboxResponse
	err := c.do(ctx, http.MethodGet, path, nil, &events)
	return events, err
}

// GetOutbox возвращает строку outbox по ID.
func (c *Client) GetOutbox(ctx context.Context, id string) (*OutboxResponse, error) {
	var event OutboxResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/outbox/"+url.PathEscape(id), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// RequeueOutbox возвращает dead_letter строку в очередь.
func (c *Client) RequeueOutbox(ctx context.Context, id string) (*OutboxResponse, error) {
	var event OutboxResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/outbox/"+url.PathEscape(id)+"/requeue", nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// OutboxStats возвращает количество строк по статусам.
func (c *Client) OutboxStats(ctx context.Context) (*OutboxStatsResponse, error) {
	var stats OutboxStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/outbox/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// --- State ---

// GetState возвращает scheduler_state клиента.
func (c *Client) GetState(ctx context.Context, clientID string) (*StateResponse, error) {
	var state StateResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/clients/"+url.PathEscape(clientID)+"/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// --- Runs ---

// TriggerRun запускает run. С wait=true дожидается отчёта.
// Без wait возвращает nil отчёт.
func (c *Client) TriggerRun(ctx context.Context, wait bool) (*RunReport, error) {
	if !wait {
		return nil, c.do(ctx, http.MethodPost, "/api/v1/runs", nil, nil)
	}
	var report RunReport
	if err := c.do(ctx, http.MethodPost, "/api/v1/runs?wait=true", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RunStatus возвращает фазу orchestrator.
func (c *Client) RunStatus(ctx context.Context) (*RunStatusResponse, error) {
	var status RunStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// --- HTTP helpers ---

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	// Для списков total не нужен: количество видно по длине
	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}

// IsNotFound возвращает true, если сервер ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
