package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/outbox", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RawQuery)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{{
				"id": "11111111-1111-1111-1111-111111111111", "client_id": "ACME", "destination": "chat-1",
				"status": "dead_letter", "attempt_count": 5, "max_attempts": 5, "error_message": "gateway timeout",
			}},
			"total": 1,
		})
	})
	mux.HandleFunc("GET /api/v1/outbox/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"counts": map[string]int{"sent": 7, "dead_letter": 1}, "total": 8,
		}})
	})
	mux.HandleFunc("GET /api/v1/outbox/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{
			"code": "NOT_FOUND", "message": "outbox event not found",
		}})
	})
	mux.HandleFunc("POST /api/v1/outbox/{id}/requeue", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id": r.PathValue("id"), "client_id": "ACME", "status": "pending",
		}})
	})
	mux.HandleFunc("GET /api/v1/clients/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"client_id": r.PathValue("id"), "last_counts": map[string]int{"instagram": 12, "tiktok": 3},
		}})
	})
	mux.HandleFunc("POST /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") == "true" {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"run_id": "r-1", "clients": 3, "succeeded": 3, "enqueued": 2,
			}})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"data": map[string]bool{"accepted": true}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClient_ListOutbox(t *testing.T) {
	srv, seen := newAPI(t)
	c := NewClient(srv.URL+"/", 0)

	events, err := c.ListOutbox(context.Background(), ListOutboxOpts{Status: "dead_letter", ClientID: "acme", Limit: 5})
	if err != nil {
		t.Fatalf("ListOutbox failed: %v", err)
	}
	if len(events) != 1 || events[0].AttemptCount != 5 {
		t.Fatalf("unexpected events: %+v", events)
	}
	if got := (*seen)[0]; got != "client_id=acme&limit=5&status=dead_letter" {
		t.Errorf("unexpected query %q", got)
	}
}

func TestClient_NotFound(t *testing.T) {
	srv, _ := newAPI(t)
	c := NewClient(srv.URL, 0)

	_, err := c.GetOutbox(context.Background(), "11111111-1111-1111-1111-111111111111")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), "NOT_FOUND: outbox event not found") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestClient_TriggerRun(t *testing.T) {
	srv, _ := newAPI(t)
	c := NewClient(srv.URL, 0)

	report, err := c.TriggerRun(context.Background(), false)
	if err != nil || report != nil {
		t.Fatalf("expected nil report without wait, got %+v, %v", report, err)
	}

	report, err = c.TriggerRun(context.Background(), true)
	if err != nil {
		t.Fatalf("TriggerRun failed: %v", err)
	}
	if report.RunID != "r-1" || report.Enqueued != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func runCmd(t *testing.T, srvURL string, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	clientFn := func() *Client { return NewClient(srvURL, 0) }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	root := NewOutboxCmd(clientFn, outputFn)
	root.SetArgs(args)
	root.SetOut(&stderr)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestOutboxListCmd_Table(t *testing.T) {
	srv, _ := newAPI(t)

	stdout, _, err := runCmd(t, srv.URL, false, "list", "--status", "dead_letter")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	for _, want := range []string{"ID", "STATUS", "dead_letter", "5/5", "gateway timeout"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestOutboxStatsCmd_JSON(t *testing.T) {
	srv, _ := newAPI(t)

	stdout, _, err := runCmd(t, srv.URL, true, "stats")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	var stats OutboxStatsResponse
	if err := json.Unmarshal([]byte(stdout), &stats); err != nil {
		t.Fatalf("expected JSON output: %v\n%s", err, stdout)
	}
	if stats.Total != 8 {
		t.Errorf("expected total 8, got %d", stats.Total)
	}
}

func TestOutboxRequeueCmd(t *testing.T) {
	srv, _ := newAPI(t)

	_, stderr, err := runCmd(t, srv.URL, false, "requeue", "abc")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(stderr, "Requeued abc (client ACME)") {
		t.Errorf("unexpected message: %q", stderr)
	}
}

func TestStateShowCmd(t *testing.T) {
	srv, _ := newAPI(t)
	var stdout bytes.Buffer

	cmd := NewStateCmd(
		func() *Client { return NewClient(srv.URL, 0) },
		func() *Output { return NewOutputTo(false, &stdout, &bytes.Buffer{}) },
	)
	cmd.SetArgs([]string{"show", "ACME"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Instagram:") || !strings.Contains(stdout.String(), "12") {
		t.Errorf("unexpected output:\n%s", stdout.String())
	}
}

func TestStatus(t *testing.T) {
	if Status("sent") != "sent" {
		t.Error("expected plain text with colours disabled")
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("привет мир", 6); got != "приве…" {
		t.Errorf("unexpected %q", got)
	}
	if got := shorten("ok", 6); got != "ok" {
		t.Errorf("unexpected %q", got)
	}
}
