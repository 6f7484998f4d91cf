package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPSender отправляет сообщения через HTTP-шлюз (WhatsApp gateway).
//
// Запрос: POST {URL} с телом {"to": destination, "text": text}.
// Успех — 2xx и в ответе нет явного {"sent": false}.
type HTTPSender struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewHTTPSender создаёт HTTPSender.
func NewHTTPSender(url, token string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPSender{
		URL:    url,
		Token:  token,
		Client: &http.Client{Timeout: timeout},
	}
}

type gatewayRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type gatewayResponse struct {
	Sent  *bool  `json:"sent"`
	Error string `json:"error"`
}

// SendMessage реализует Sender.
func (s *HTTPSender) SendMessage(ctx context.Context, destination, text string) (bool, error) {
	if destination == "" {
		return false, ErrInvalidDestination
	}

	body, err := json.Marshal(gatewayRequest{To: destination, Text: text})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var gr gatewayResponse
	if len(respBody) > 0 && json.Unmarshal(respBody, &gr) == nil {
		if gr.Sent != nil && !*gr.Sent {
			if gr.Error != "" {
				return false, fmt.Errorf("gateway rejected message: %s", gr.Error)
			}
			return false, nil
		}
	}
	return true, nil
}
