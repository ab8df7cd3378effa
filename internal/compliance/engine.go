package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/metrics"
	"github.com/mshadianto/mnee-sentinel/internal/store"
	"github.com/shopspring/decimal"
)

// Engine runs the ordered compliance checks against a parsed proposal:
// confidence gate, address and amount validity, vendor whitelist, vendor
// transaction limit, category budget, transaction velocity. The first failure
// wins and later checks do not run. Evaluation never mutates state; all
// mutations happen in the Recorder after the decision (and any execution).
type Engine struct {
	vendorRepo          store.VendorRepository
	budgetRepo          store.BudgetRepository
	tracker             *Tracker
	confidenceThreshold decimal.Decimal
	logger              *slog.Logger
}

func NewEngine(
	vendorRepo store.VendorRepository,
	budgetRepo store.BudgetRepository,
	tracker *Tracker,
	confidenceThreshold decimal.Decimal,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		vendorRepo:          vendorRepo,
		budgetRepo:          budgetRepo,
		tracker:             tracker,
		confidenceThreshold: confidenceThreshold,
		logger:              logger.With("component", "compliance_engine"),
	}
}

func (e *Engine) reject(p model.ParsedProposal, check, reasoning string, details map[string]any) *model.AuditDecision {
	if check != "" {
		details[check] = model.CheckFailed
		metrics.CheckFailuresTotal.WithLabelValues(check).Inc()
	}
	metrics.DecisionsTotal.WithLabelValues(string(model.DecisionRejected)).Inc()

	e.logger.Info("proposal rejected",
		"vendor", p.VendorName,
		"address", p.VendorAddress,
		"amount", p.Amount.String(),
		"check", check,
		"reason", reasoning,
	)
	return &model.AuditDecision{
		Decision:   model.DecisionRejected,
		Reasoning:  reasoning,
		Confidence: p.Confidence,
		Details:    details,
	}
}

// Evaluate produces a decision for the proposal. It always returns a decision
// object, never an error: extraction and lookup failures surface as REJECTED
// with reasoning that identifies the shortfall. Lookups that cannot be
// answered (store unreachable, timeout) reject conservatively rather than
// approving an unverified payment.
func (e *Engine) Evaluate(ctx context.Context, p model.ParsedProposal) *model.AuditDecision {
	start := time.Now()
	defer func() {
		metrics.EvaluateLatency.Observe(time.Since(start).Seconds())
	}()

	details := make(map[string]any)

	// 1. Confidence gate. Rejections record the confidence of the parse
	// itself; the pipeline never recomputes it.
	if p.Confidence.LessThan(e.confidenceThreshold) {
		details[model.DetailParsingFailed] = true
		return e.reject(p, "", fmt.Sprintf(
			"insufficient parsing confidence: got %s, need %s",
			p.Confidence, e.confidenceThreshold,
		), details)
	}

	// 2. Address and amount shape.
	if !IsValidAddress(p.VendorAddress) {
		return e.reject(p, model.CheckAddressValidation, fmt.Sprintf(
			"invalid address format: %q is not a 0x-prefixed 40-hex-char address",
			p.VendorAddress,
		), details)
	}
	details[model.CheckAddressValidation] = model.CheckPassed

	if !IsPositiveAmount(p.Amount) {
		return e.reject(p, model.CheckAmountValidation, fmt.Sprintf(
			"invalid amount: %s must be positive with at most %d decimal places",
			p.Amount, AmountDecimals,
		), details)
	}
	details[model.CheckAmountValidation] = model.CheckPassed

	// 3. Vendor whitelist.
	vendor, err := e.vendorRepo.FindByAddress(ctx, p.VendorAddress)
	if err != nil {
		e.logger.Error("whitelist lookup failed", "address", p.VendorAddress, "error", err)
		return e.reject(p, model.CheckWhitelist,
			"could not verify vendor whitelist: ledger store unavailable", details)
	}
	if vendor == nil || !vendor.IsActive {
		return e.reject(p, model.CheckWhitelist, fmt.Sprintf(
			"vendor not whitelisted: %s (%s) is not authorized to receive treasury funds",
			p.VendorName, p.VendorAddress,
		), details)
	}
	details[model.CheckWhitelist] = model.CheckPassed

	// 4. Vendor transaction limit.
	if p.Amount.GreaterThan(vendor.MaxTransactionLimit) {
		details["vendor_limit"] = vendor.MaxTransactionLimit.String()
		return e.reject(p, model.CheckVendorLimit, fmt.Sprintf(
			"exceeds vendor transaction limit: requested %s MNEE, limit %s MNEE, overage %s MNEE",
			p.Amount, vendor.MaxTransactionLimit, p.Amount.Sub(vendor.MaxTransactionLimit),
		), details)
	}
	details[model.CheckVendorLimit] = model.CheckPassed

	// 5. Category budget. A missing budget row means nothing is allocated.
	budget, err := e.budgetRepo.Get(ctx, vendor.Category)
	if err != nil {
		e.logger.Error("budget lookup failed", "category", vendor.Category, "error", err)
		return e.reject(p, model.CheckBudget,
			"could not verify category budget: ledger store unavailable", details)
	}
	if budget == nil {
		budget = &model.BudgetCategory{Category: vendor.Category}
	}
	remaining := budget.Remaining()
	if p.Amount.GreaterThan(remaining) {
		details["remaining_budget"] = remaining.String()
		details["total_budget"] = budget.MonthlyLimit.String()
		return e.reject(p, model.CheckBudget, fmt.Sprintf(
			"insufficient budget in %s category: required %s MNEE, remaining %s MNEE of %s total, shortfall %s MNEE",
			vendor.Category, p.Amount, remaining, budget.MonthlyLimit, p.Amount.Sub(remaining),
		), details)
	}
	details[model.CheckBudget] = model.CheckPassed

	// 6. Transaction velocity.
	safe, velocityReason, err := e.tracker.IsSafe(ctx, p.VendorAddress, p.Amount)
	if err != nil {
		e.logger.Error("velocity lookup failed", "address", p.VendorAddress, "error", err)
		return e.reject(p, model.CheckVelocity,
			"could not verify transaction velocity: ledger store unavailable", details)
	}
	if !safe {
		return e.reject(p, model.CheckVelocity, fmt.Sprintf(
			"transaction velocity alert: %s; this may indicate fraudulent activity or duplicate submission",
			velocityReason,
		), details)
	}
	details[model.CheckVelocity] = model.CheckPassed

	details["vendor_name"] = vendor.VendorName
	details["vendor_category"] = string(vendor.Category)
	details["vendor_limit"] = vendor.MaxTransactionLimit.String()
	details["remaining_budget"] = remaining.String()
	details["total_budget"] = budget.MonthlyLimit.String()

	metrics.DecisionsTotal.WithLabelValues(string(model.DecisionApproved)).Inc()
	e.logger.Info("proposal approved",
		"vendor", vendor.VendorName,
		"address", vendor.WalletAddress,
		"amount", p.Amount.String(),
		"category", vendor.Category,
		"remaining_budget", remaining.String(),
	)

	return &model.AuditDecision{
		Decision: model.DecisionApproved,
		Reasoning: fmt.Sprintf(
			"all compliance checks passed: vendor %s (%s), amount %s MNEE within limit %s MNEE, budget remaining %s of %s MNEE, velocity ok",
			vendor.VendorName, vendor.Category, p.Amount, vendor.MaxTransactionLimit, remaining, budget.MonthlyLimit,
		),
		Confidence: p.Confidence,
		Details:    details,
		Vendor:     vendor,
		Budget:     budget,
	}
}
