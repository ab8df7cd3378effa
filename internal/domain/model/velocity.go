package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VelocityRecord is the rolling per-vendor transaction window used by the
// fraud-rate tracker. One active window per vendor address; an expired window
// is superseded in place on the next write, never swept in the background.
type VelocityRecord struct {
	VendorAddress    string          `db:"vendor_address"`
	WindowStart      time.Time       `db:"window_start"`
	TransactionCount int             `db:"transaction_count"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	LastUpdated      time.Time       `db:"last_updated"`
}
