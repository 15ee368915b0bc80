package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer records every webhook payload it receives.
func captureServer(t *testing.T, status int) (*httptest.Server, func() []webhookEvent, func() http.Header) {
	t.Helper()
	var mu sync.Mutex
	var events []webhookEvent
	var header http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		events = append(events, evt)
		header = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []webhookEvent {
			mu.Lock()
			defer mu.Unlock()
			return append([]webhookEvent(nil), events...)
		}, func() http.Header {
			mu.Lock()
			defer mu.Unlock()
			return header
		}
}

func TestWebhookDelivery(t *testing.T) {
	srv, events, header := captureServer(t, http.StatusOK)

	wh := newAuditWebhook(srv.URL, "Authorization: Bearer siem-token")
	wh.enqueue(webhookEvent{
		Event:      string(AuditCredentialCreated),
		UserID:     "user-42",
		RemoteAddr: "127.0.0.1:1234",
		Timestamp:  "2025-01-01T00:00:00Z",
		Attrs:      map[string]string{"name": "plaid_key"},
	})
	wh.close()

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, "credential_created", got[0].Event)
	assert.Equal(t, "user-42", got[0].UserID)
	assert.Equal(t, "plaid_key", got[0].Attrs["name"])
	assert.Equal(t, "Bearer siem-token", header().Get("Authorization"))
	assert.Equal(t, "application/json", header().Get("Content-Type"))
}

func TestWebhookRetries(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		want     int32
	}{
		{"retry once on 5xx", []int{http.StatusInternalServerError, http.StatusOK}, 2},
		{"give up after second 5xx", []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusOK}, 2},
		{"no retry on 4xx", []int{http.StatusBadRequest, http.StatusOK}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				w.WriteHeader(tc.statuses[n-1])
			}))
			defer srv.Close()

			wh := newAuditWebhook(srv.URL, "")
			wh.enqueue(webhookEvent{Event: "test_event", Timestamp: "2025-01-01T00:00:00Z"})
			wh.close()

			assert.Equal(t, tc.want, attempts.Load())
		})
	}
}

func TestWebhookQueueFullDoesNotBlock(t *testing.T) {
	// No loop goroutine: nothing drains the queue.
	wh := &auditWebhook{events: make(chan webhookEvent, 2)}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			wh.enqueue(webhookEvent{Event: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	assert.Len(t, wh.events, 2)
}

func TestWebhookCloseDrainsQueue(t *testing.T) {
	srv, events, _ := captureServer(t, http.StatusOK)

	wh := newAuditWebhook(srv.URL, "")
	for i := 0; i < 5; i++ {
		wh.enqueue(webhookEvent{Event: "drain_test", Timestamp: "2025-01-01T00:00:00Z"})
	}
	wh.close()
	wh.close()

	assert.Len(t, events(), 5)
}

func TestAuditLoggerForwardsToWebhook(t *testing.T) {
	srv, events, _ := captureServer(t, http.StatusOK)

	al := newAuditLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	al.webhook = newAuditWebhook(srv.URL, "")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/credentials/plaid_key", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	al.logEvent(AuditCredentialRevealed, r, "user-42", slog.String("name", "plaid_key"))
	al.logFailure(AuditAuthFailure, r, "invalid token")
	al.webhook.close()

	got := events()
	require.Len(t, got, 2)
	assert.Equal(t, "credential_revealed", got[0].Event)
	assert.Equal(t, "user-42", got[0].UserID)
	assert.Equal(t, "10.0.0.1:5555", got[0].RemoteAddr)
	assert.Equal(t, map[string]string{"name": "plaid_key"}, got[0].Attrs)

	assert.Equal(t, "auth_failed", got[1].Event)
	assert.Empty(t, got[1].UserID)
	assert.Equal(t, "invalid token", got[1].Attrs["reason"])
}
