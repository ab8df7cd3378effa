package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Decision is the terminal outcome of a compliance evaluation.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// CheckStatus marks whether a single pipeline check passed or failed.
type CheckStatus string

const (
	CheckPassed CheckStatus = "PASSED"
	CheckFailed CheckStatus = "FAILED"
)

// Detail keys recorded in AuditDecision.Details, one per pipeline check, in
// evaluation order. DetailParsingFailed is set when the confidence gate
// rejects before any lookup runs.
const (
	DetailParsingFailed    = "parsing_failed"
	CheckAddressValidation = "address_validation"
	CheckAmountValidation  = "amount_validation"
	CheckWhitelist         = "whitelist_check"
	CheckVendorLimit       = "vendor_limit_check"
	CheckBudget            = "budget_check"
	CheckVelocity          = "velocity_check"
)

// AuditDecision is the result of running a proposal through the compliance
// pipeline. Details carries per-check PASSED/FAILED statuses plus the values
// compared, so the decision can be reproduced from the audit log alone.
// Vendor and Budget are the snapshots bound during evaluation (nil when the
// pipeline rejected before reaching them).
type AuditDecision struct {
	Decision   Decision
	Reasoning  string
	Confidence decimal.Decimal
	Details    map[string]any
	Vendor     *WhitelistedVendor
	Budget     *BudgetCategory
}

// Approved reports whether the proposal may be handed to the payment rail.
func (d *AuditDecision) Approved() bool {
	return d.Decision == DecisionApproved
}

// AuditLogEntry is one append-only compliance record. Entries are never
// updated or deleted; they are the sole source of truth for compliance
// history.
type AuditLogEntry struct {
	ID              uuid.UUID       `db:"id"`
	ProposalText    string          `db:"proposal_text"`
	VendorName      string          `db:"vendor_name"`
	VendorAddress   string          `db:"vendor_address"`
	Amount          decimal.Decimal `db:"amount"`
	Category        Category        `db:"category"`
	Decision        Decision        `db:"decision"`
	Reasoning       string          `db:"reasoning"`
	AIConfidence    decimal.Decimal `db:"ai_confidence"`
	TransactionHash *string         `db:"transaction_hash"`
	CreatedAt       time.Time       `db:"created_at"`
}
