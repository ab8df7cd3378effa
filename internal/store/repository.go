package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/shopspring/decimal"
)

// ErrBudgetExceeded is returned by IncrementSpentTx when the requested spend
// would push current_spent past the monthly limit. The guard runs inside the
// database so concurrent spends cannot both pass on a stale read.
var ErrBudgetExceeded = errors.New("budget exceeded")

// TxBeginner abstracts the ability to begin a database transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// VendorRepository provides access to the vendor whitelist.
type VendorRepository interface {
	// FindByAddress looks up a vendor by wallet address (case-insensitive).
	// Returns (nil, nil) when the address is not whitelisted.
	FindByAddress(ctx context.Context, address string) (*model.WhitelistedVendor, error)
	Upsert(ctx context.Context, vendor *model.WhitelistedVendor) error
	ListActive(ctx context.Context) ([]model.WhitelistedVendor, error)
}

// BudgetRepository provides access to category budgets.
type BudgetRepository interface {
	// Get returns (nil, nil) when no budget row exists for the category.
	Get(ctx context.Context, category model.Category) (*model.BudgetCategory, error)
	List(ctx context.Context) ([]model.BudgetCategory, error)
	// IncrementSpentTx atomically adds amount to current_spent, failing with
	// ErrBudgetExceeded if the addition would cross monthly_limit.
	IncrementSpentTx(ctx context.Context, tx *sql.Tx, category model.Category, amount decimal.Decimal) error
}

// VelocityRepository provides access to per-vendor velocity windows.
type VelocityRepository interface {
	// GetWindow returns the vendor's active window, i.e. the record whose
	// window_start is at or after notBefore. Returns (nil, nil) when the
	// vendor has no active window.
	GetWindow(ctx context.Context, address string, notBefore time.Time) (*model.VelocityRecord, error)
	// RecordTx increments the active window, or opens a fresh one starting at
	// now when the existing window began before windowFloor (or none exists).
	// The write is a single upsert statement so concurrent recordings for one
	// vendor never lose an increment.
	RecordTx(ctx context.Context, tx *sql.Tx, address string, amount decimal.Decimal, now, windowFloor time.Time) error
}

// AuditLogRepository provides append-only access to compliance records.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *model.AuditLogEntry) error
	AppendTx(ctx context.Context, tx *sql.Tx, entry *model.AuditLogEntry) error
	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.AuditLogEntry, error)
	// ExecutedSpendByCategory sums the amounts of APPROVED entries that carry
	// a transaction hash, per category. Used by reconciliation.
	ExecutedSpendByCategory(ctx context.Context) (map[model.Category]decimal.Decimal, error)
}
