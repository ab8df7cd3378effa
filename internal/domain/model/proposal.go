package model

import "github.com/shopspring/decimal"

// ParsedProposal is the structured record an extractor derives from a payment
// proposal. It is immutable once produced; the recorder copies its fields into
// the audit log entry.
type ParsedProposal struct {
	SourceText     string
	VendorName     string
	VendorAddress  string // 42-char hex, lower-cased for storage
	Amount         decimal.Decimal
	Category       Category
	Confidence     decimal.Decimal // in [0, 1]
	Interpretation string
}
