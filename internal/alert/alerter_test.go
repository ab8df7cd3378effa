package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerter struct {
	sent []Alert
}

func (c *captureAlerter) Send(_ context.Context, a Alert) error {
	c.sent = append(c.sent, a)
	return nil
}

func TestCooldown_SuppressesRepeatsWithinWindow(t *testing.T) {
	inner := &captureAlerter{}
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	c := NewCooldownAlerter(inner, 5*time.Minute, slog.Default()).WithClock(func() time.Time { return now })

	a := Alert{Type: AlertTypeVelocityRejected, Title: "velocity"}
	require.NoError(t, c.Send(context.Background(), a))
	require.NoError(t, c.Send(context.Background(), a))
	require.NoError(t, c.Send(context.Background(), a))

	assert.Len(t, inner.sent, 1)
}

func TestCooldown_SendsAgainAfterWindow(t *testing.T) {
	inner := &captureAlerter{}
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	c := NewCooldownAlerter(inner, 5*time.Minute, slog.Default()).WithClock(func() time.Time { return now })

	a := Alert{Type: AlertTypeVelocityRejected}
	require.NoError(t, c.Send(context.Background(), a))

	now = now.Add(5 * time.Minute)
	require.NoError(t, c.Send(context.Background(), a))

	assert.Len(t, inner.sent, 2)
}

func TestCooldown_TypesAreIndependent(t *testing.T) {
	inner := &captureAlerter{}
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	c := NewCooldownAlerter(inner, 5*time.Minute, slog.Default()).WithClock(func() time.Time { return now })

	require.NoError(t, c.Send(context.Background(), Alert{Type: AlertTypeVelocityRejected}))
	require.NoError(t, c.Send(context.Background(), Alert{Type: AlertTypeAuditWriteFailed}))
	require.NoError(t, c.Send(context.Background(), Alert{Type: AlertTypeReconcileMismatch}))

	assert.Len(t, inner.sent, 3)
}

func TestWebhook_PostsJSONPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhookAlerter(srv.URL, 5*time.Second)
	err := wh.Send(context.Background(), Alert{
		Type:    AlertTypeAuditWriteFailed,
		Title:   "audit log write failed",
		Message: "details",
		Fields:  map[string]string{"vendor": "0xabc"},
	})
	require.NoError(t, err)

	assert.Equal(t, string(AlertTypeAuditWriteFailed), got.Type)
	assert.Equal(t, "audit log write failed", got.Title)
	assert.Equal(t, "0xabc", got.Fields["vendor"])
}

func TestWebhook_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhookAlerter(srv.URL, 5*time.Second)
	err := wh.Send(context.Background(), Alert{Type: AlertTypeReconcileMismatch})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNoop_DiscardsEverything(t *testing.T) {
	assert.NoError(t, Noop{}.Send(context.Background(), Alert{Type: AlertTypeVelocityRejected}))
}
