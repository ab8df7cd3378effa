package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mshadianto/mnee-sentinel/internal/alert"
	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/metrics"
	"github.com/mshadianto/mnee-sentinel/internal/store"
)

// Mismatch is one category whose budget counter disagrees with the audit
// trail. Delta is BudgetSpent minus ExecutedSpent; a positive delta means the
// budget counter claims more spend than the audit log can account for.
type Mismatch struct {
	Category      model.Category  `json:"category"`
	BudgetSpent   decimal.Decimal `json:"budget_spent"`
	ExecutedSpent decimal.Decimal `json:"executed_spent"`
	Delta         decimal.Decimal `json:"delta"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RanAt      time.Time  `json:"ran_at"`
	Categories int        `json:"categories_checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

func (r *Report) Clean() bool { return len(r.Mismatches) == 0 }

// Service cross-checks the budgets table against the audit log. The budget
// counters are updated in the same transaction as the audit entries, so any
// drift points at manual intervention in the database or a bug, and is worth
// an alert either way.
type Service struct {
	budgetRepo store.BudgetRepository
	auditRepo  store.AuditLogRepository
	alerter    alert.Alerter
	logger     *slog.Logger
	nowFunc    func() time.Time
}

func NewService(budgetRepo store.BudgetRepository, auditRepo store.AuditLogRepository, alerter alert.Alerter, logger *slog.Logger) *Service {
	return &Service{
		budgetRepo: budgetRepo,
		auditRepo:  auditRepo,
		alerter:    alerter,
		logger:     logger.With("component", "reconciliation"),
		nowFunc:    time.Now,
	}
}

// WithClock overrides the report timestamp clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowFunc = now
	return s
}

func (s *Service) Run(ctx context.Context) (*Report, error) {
	budgets, err := s.budgetRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	executed, err := s.auditRepo.ExecutedSpendByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum executed spend: %w", err)
	}

	report := &Report{
		RanAt:      s.nowFunc(),
		Categories: len(budgets),
		Mismatches: []Mismatch{},
	}
	for _, b := range budgets {
		got := executed[b.Category]
		if b.CurrentSpent.Equal(got) {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			Category:      b.Category,
			BudgetSpent:   b.CurrentSpent,
			ExecutedSpent: got,
			Delta:         b.CurrentSpent.Sub(got),
		})
	}

	metrics.ReconcileMismatches.Set(float64(len(report.Mismatches)))

	if report.Clean() {
		s.logger.Info("reconciliation clean", "categories", report.Categories)
		return report, nil
	}

	s.logger.Warn("reconciliation found mismatches", "count", len(report.Mismatches))
	for _, m := range report.Mismatches {
		s.logger.Warn("budget counter disagrees with audit trail",
			"category", m.Category,
			"budget_spent", m.BudgetSpent.String(),
			"executed_spent", m.ExecutedSpent.String(),
			"delta", m.Delta.String(),
		)
	}
	if s.alerter != nil {
		_ = s.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeReconcileMismatch,
			Title:   "budget reconciliation mismatch",
			Message: fmt.Sprintf("%d of %d categories disagree with the audit trail", len(report.Mismatches), report.Categories),
		})
	}
	return report, nil
}
