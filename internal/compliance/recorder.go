package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mshadianto/mnee-sentinel/internal/alert"
	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/metrics"
	"github.com/mshadianto/mnee-sentinel/internal/payment"
	"github.com/mshadianto/mnee-sentinel/internal/retry"
	"github.com/mshadianto/mnee-sentinel/internal/store"
)

// ErrDecisionNotRecorded reports that a decision was computed but could not
// be durably written to the audit log. Callers must surface it; the audit
// trail is the compliance record of record and a silent drop is never
// acceptable.
var ErrDecisionNotRecorded = errors.New("decision made but not durably recorded")

const (
	defaultRecordMaxAttempts = 3
	defaultRecordDelayStart  = 100 * time.Millisecond
	defaultRecordDelayMax    = 1 * time.Second
)

// Recorder commits the outcome of an evaluation: exactly one audit log entry
// per decision, plus — only when the decision was APPROVED and the payment
// rail actually executed — the budget spend increment and the velocity
// recording. All of it happens in one database transaction.
type Recorder struct {
	db          store.TxBeginner
	auditRepo   store.AuditLogRepository
	budgetRepo  store.BudgetRepository
	tracker     *Tracker
	alerter     alert.Alerter
	logger      *slog.Logger
	maxAttempts int
	delayStart  time.Duration
	delayMax    time.Duration
	sleepFn     func(context.Context, time.Duration) error
	nowFunc     func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.nowFunc = now }
}

func WithRecorderRetry(maxAttempts int, delayStart, delayMax time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.maxAttempts = maxAttempts
		r.delayStart = delayStart
		r.delayMax = delayMax
	}
}

// WithRecorderSleep overrides the inter-attempt sleep, for tests.
func WithRecorderSleep(sleep func(context.Context, time.Duration) error) RecorderOption {
	return func(r *Recorder) { r.sleepFn = sleep }
}

func NewRecorder(
	db store.TxBeginner,
	auditRepo store.AuditLogRepository,
	budgetRepo store.BudgetRepository,
	tracker *Tracker,
	alerter alert.Alerter,
	logger *slog.Logger,
	opts ...RecorderOption,
) *Recorder {
	r := &Recorder{
		db:          db,
		auditRepo:   auditRepo,
		budgetRepo:  budgetRepo,
		tracker:     tracker,
		alerter:     alerter,
		logger:      logger.With("component", "decision_recorder"),
		maxAttempts: defaultRecordMaxAttempts,
		delayStart:  defaultRecordDelayStart,
		delayMax:    defaultRecordDelayMax,
		sleepFn:     sleepContext,
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Record writes the audit log entry for the decision. When the decision is
// APPROVED and exec reports a successful execution, the category spend and
// velocity window are updated in the same transaction. The budget guard runs
// again inside that transaction; if the spend no longer fits (a concurrent
// execution consumed the remaining budget since evaluation), the decision is
// downgraded to REJECTED and recorded as such — stale evaluation-time reads
// are tolerated, lost mutation updates are not.
//
// Transient write failures are retried with backoff. On exhaustion the error
// wraps ErrDecisionNotRecorded and an alert is fired.
func (r *Recorder) Record(ctx context.Context, p model.ParsedProposal, dec *model.AuditDecision, exec *payment.TxResult) (*model.AuditLogEntry, error) {
	entry := &model.AuditLogEntry{
		ID:            uuid.New(),
		ProposalText:  p.SourceText,
		VendorName:    p.VendorName,
		VendorAddress: normalizeAddress(p.VendorAddress),
		Amount:        p.Amount,
		Category:      p.Category,
		Decision:      dec.Decision,
		Reasoning:     dec.Reasoning,
		AIConfidence:  dec.Confidence,
		CreatedAt:     r.nowFunc(),
	}
	if dec.Vendor != nil {
		entry.Category = dec.Vendor.Category
	}
	if exec != nil && exec.Success && exec.TxHash != "" {
		hash := exec.TxHash
		entry.TransactionHash = &hash
	}

	applyMutations := dec.Approved() && exec != nil && exec.Success

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.commit(ctx, entry, dec, applyMutations)
		if err == nil {
			metrics.AuditWritesTotal.WithLabelValues("success").Inc()
			return entry, nil
		}

		if errors.Is(err, store.ErrBudgetExceeded) {
			// A concurrent execution spent the remaining budget first. Keep
			// the audit trail honest: record a rejection instead, without
			// budget or velocity mutations. The rewrite is not a failed
			// attempt, so it does not spend retry budget; it can fire at
			// most once because the guard no longer runs afterwards.
			r.downgradeToBudgetRejection(entry, dec)
			applyMutations = false
			attempt--
			continue
		}

		lastErr = err
		if !retry.Classify(err).IsTransient() {
			break
		}
		metrics.AuditWriteRetries.Inc()
		r.logger.Warn("audit write failed, retrying",
			"attempt", attempt,
			"error", err,
		)
		if attempt < r.maxAttempts {
			if sleepErr := r.sleepFn(ctx, backoffDelay(r.delayStart, r.delayMax, attempt)); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	metrics.AuditWritesTotal.WithLabelValues("failure").Inc()
	r.alertWriteFailure(ctx, entry, lastErr)
	return nil, fmt.Errorf("%w (decision=%s vendor=%s): %v",
		ErrDecisionNotRecorded, entry.Decision, entry.VendorAddress, lastErr)
}

func (r *Recorder) commit(ctx context.Context, entry *model.AuditLogEntry, dec *model.AuditDecision, applyMutations bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.auditRepo.AppendTx(ctx, tx, entry); err != nil {
		return err
	}

	if applyMutations {
		category := entry.Category
		if dec.Vendor != nil {
			category = dec.Vendor.Category
		}
		if err := r.budgetRepo.IncrementSpentTx(ctx, tx, category, entry.Amount); err != nil {
			return err
		}
		if err := r.tracker.Record(ctx, tx, entry.VendorAddress, entry.Amount); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Recorder) downgradeToBudgetRejection(entry *model.AuditLogEntry, dec *model.AuditDecision) {
	reason := fmt.Sprintf(
		"insufficient budget in %s category at commit time: a concurrent disbursement consumed the remaining budget",
		entry.Category,
	)
	entry.Decision = model.DecisionRejected
	entry.Reasoning = reason
	entry.TransactionHash = nil

	dec.Decision = model.DecisionRejected
	dec.Reasoning = reason
	if dec.Details != nil {
		dec.Details[model.CheckBudget] = model.CheckFailed
	}

	metrics.CheckFailuresTotal.WithLabelValues(model.CheckBudget).Inc()
	r.logger.Warn("approved proposal rejected at commit: budget exhausted",
		"vendor", entry.VendorAddress,
		"category", entry.Category,
		"amount", entry.Amount.String(),
	)
}

func (r *Recorder) alertWriteFailure(ctx context.Context, entry *model.AuditLogEntry, cause error) {
	if r.alerter == nil {
		return
	}
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	_ = r.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeAuditWriteFailed,
		Title:   "audit log write failed",
		Message: "a compliance decision could not be durably recorded",
		Fields: map[string]string{
			"decision": string(entry.Decision),
			"vendor":   entry.VendorAddress,
			"amount":   entry.Amount.String(),
			"error":    errText,
		},
	})
}

func backoffDelay(start, max time.Duration, attempt int) time.Duration {
	d := start << (attempt - 1)
	if d > max {
		return max
	}
	return d
}
