package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetCategory tracks monthly spend against a category cap. CurrentSpent is
// mutated only by the decision recorder after an approved and executed
// transaction; period rollover is an external administrative operation.
type BudgetCategory struct {
	Category     Category        `db:"category"`
	MonthlyLimit decimal.Decimal `db:"monthly_limit"`
	CurrentSpent decimal.Decimal `db:"current_spent"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// Remaining returns how much of the monthly limit is still unspent.
func (b BudgetCategory) Remaining() decimal.Decimal {
	return b.MonthlyLimit.Sub(b.CurrentSpent)
}
