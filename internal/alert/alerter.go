package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/metrics"
)

// AlertType categorizes the kind of alert.
type AlertType string

const (
	AlertTypeVelocityRejected  AlertType = "VELOCITY_REJECTED"
	AlertTypeAuditWriteFailed  AlertType = "AUDIT_WRITE_FAILED"
	AlertTypeReconcileMismatch AlertType = "RECONCILE_MISMATCH"
)

// Alert represents a single alert event.
type Alert struct {
	Type    AlertType
	Title   string
	Message string
	Fields  map[string]string
}

// Alerter is the interface for sending alerts.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Noop discards all alerts. Used when no webhook is configured.
type Noop struct{}

func (Noop) Send(context.Context, Alert) error { return nil }

// CooldownAlerter wraps another alerter and suppresses repeats of the same
// alert type within the cooldown period, so a burst of velocity rejections
// does not flood the channel.
type CooldownAlerter struct {
	inner    Alerter
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
	nowFunc  func() time.Time
}

func NewCooldownAlerter(inner Alerter, cooldown time.Duration, logger *slog.Logger) *CooldownAlerter {
	return &CooldownAlerter{
		inner:    inner,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		lastSent: make(map[AlertType]time.Time),
		nowFunc:  time.Now,
	}
}

// WithClock overrides the cooldown clock, for tests.
func (c *CooldownAlerter) WithClock(now func() time.Time) *CooldownAlerter {
	c.nowFunc = now
	return c
}

func (c *CooldownAlerter) Send(ctx context.Context, alert Alert) error {
	now := c.nowFunc()

	c.mu.Lock()
	if last, ok := c.lastSent[alert.Type]; ok && now.Sub(last) < c.cooldown {
		c.mu.Unlock()
		c.logger.Debug("alert suppressed by cooldown", "type", alert.Type)
		metrics.AlertsSuppressedTotal.WithLabelValues(string(alert.Type)).Inc()
		return nil
	}
	c.lastSent[alert.Type] = now
	c.mu.Unlock()

	if err := c.inner.Send(ctx, alert); err != nil {
		c.logger.Warn("alert send failed", "type", alert.Type, "error", err)
		return err
	}
	metrics.AlertsSentTotal.WithLabelValues(string(alert.Type)).Inc()
	return nil
}

// WebhookAlerter posts alerts as JSON to a configured URL (Slack-style
// incoming webhook or any compatible receiver).
type WebhookAlerter struct {
	url    string
	client *http.Client
}

func NewWebhookAlerter(url string, timeout time.Duration) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Type    string            `json:"type"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Type:    string(alert.Type),
		Title:   alert.Title,
		Message: alert.Message,
		Fields:  alert.Fields,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	return nil
}
