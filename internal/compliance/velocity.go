package compliance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/store"
	"github.com/shopspring/decimal"
)

// Tracker maintains the per-vendor rolling transaction window used by the
// velocity (fraud-rate) check. Reads are side-effect free; Record is called
// only after an approved transaction has actually been executed.
type Tracker struct {
	velocityRepo store.VelocityRepository
	windowLength time.Duration
	maxPerWindow int
	logger       *slog.Logger
	nowFunc      func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the tracker's clock, for window-expiry tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.nowFunc = now }
}

func NewTracker(repo store.VelocityRepository, windowLength time.Duration, maxPerWindow int, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		velocityRepo: repo,
		windowLength: windowLength,
		maxPerWindow: maxPerWindow,
		logger:       logger.With("component", "velocity_tracker"),
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsSafe answers whether another transaction for address is within the
// per-window transaction cap. It never mutates tracker state. The amount is
// accepted for future amount-based throttling rules and is currently unused.
func (t *Tracker) IsSafe(ctx context.Context, address string, amount decimal.Decimal) (bool, string, error) {
	_ = amount

	now := t.nowFunc()
	rec, err := t.velocityRepo.GetWindow(ctx, strings.ToLower(address), now.Add(-t.windowLength))
	if err != nil {
		return false, "velocity check unavailable", fmt.Errorf("get velocity window: %w", err)
	}
	if rec == nil {
		return true, "velocity check passed", nil
	}

	if rec.TransactionCount >= t.maxPerWindow {
		return false, fmt.Sprintf("exceeded max transactions (%d/day)", t.maxPerWindow), nil
	}
	return true, "velocity check passed", nil
}

// Record registers one executed transaction inside tx. An expired window is
// replaced; an active one is incremented. The underlying write is a single
// atomic upsert, so concurrent recordings cannot lose an increment.
func (t *Tracker) Record(ctx context.Context, tx *sql.Tx, address string, amount decimal.Decimal) error {
	now := t.nowFunc()
	if err := t.velocityRepo.RecordTx(ctx, tx, strings.ToLower(address), amount, now, now.Add(-t.windowLength)); err != nil {
		return fmt.Errorf("record velocity: %w", err)
	}
	return nil
}
