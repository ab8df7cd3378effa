package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WhitelistedVendor is a wallet address authorized to receive treasury
// disbursements. Managed by governance administration; read-only to the
// compliance pipeline. An inactive vendor is treated the same as an
// unknown one.
type WhitelistedVendor struct {
	ID                  uuid.UUID       `db:"id"`
	WalletAddress       string          `db:"wallet_address"`
	VendorName          string          `db:"vendor_name"`
	Category            Category        `db:"category"`
	MaxTransactionLimit decimal.Decimal `db:"max_transaction_limit"`
	IsActive            bool            `db:"is_active"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}
