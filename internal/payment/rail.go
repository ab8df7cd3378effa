package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxResult reports the outcome of a payment rail execution.
type TxResult struct {
	Success bool
	TxHash  string
	Mode    string
	Err     string
}

// Rail executes an approved disbursement. Execution is not part of the
// compliance decision: an APPROVED decision means authorized to execute, and
// rail failures never rewrite it. The rail may be slow; callers pass a
// context with whatever deadline they can tolerate.
type Rail interface {
	Execute(ctx context.Context, address string, amount decimal.Decimal) (TxResult, error)
}
