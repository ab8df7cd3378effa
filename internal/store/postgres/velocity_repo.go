package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/shopspring/decimal"
)

type VelocityRepo struct {
	db *DB
}

func NewVelocityRepo(db *DB) *VelocityRepo {
	return &VelocityRepo{db: db}
}

func (r *VelocityRepo) GetWindow(ctx context.Context, address string, notBefore time.Time) (*model.VelocityRecord, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rec model.VelocityRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT vendor_address, window_start, transaction_count, total_amount, last_updated
		FROM transaction_velocity
		WHERE vendor_address = $1 AND window_start >= $2
	`, strings.ToLower(address), notBefore).Scan(
		&rec.VendorAddress, &rec.WindowStart, &rec.TransactionCount,
		&rec.TotalAmount, &rec.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get velocity window: %w", err)
	}
	return &rec, nil
}

// RecordTx increments the vendor's active window or opens a fresh one when the
// stored window began before windowFloor. A single upsert keeps concurrent
// recordings for the same vendor serialized on the row; stale windows are
// superseded in place rather than swept.
func (r *VelocityRepo) RecordTx(ctx context.Context, tx *sql.Tx, address string, amount decimal.Decimal, now, windowFloor time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transaction_velocity (vendor_address, window_start, transaction_count, total_amount, last_updated)
		VALUES ($1, $2, 1, $3::numeric, $2)
		ON CONFLICT (vendor_address) DO UPDATE SET
			transaction_count = CASE
				WHEN transaction_velocity.window_start < $4 THEN 1
				ELSE transaction_velocity.transaction_count + 1
			END,
			total_amount = CASE
				WHEN transaction_velocity.window_start < $4 THEN $3::numeric
				ELSE transaction_velocity.total_amount + $3::numeric
			END,
			window_start = CASE
				WHEN transaction_velocity.window_start < $4 THEN $2
				ELSE transaction_velocity.window_start
			END,
			last_updated = $2
	`, strings.ToLower(address), now, amount.String(), windowFloor)
	if err != nil {
		return fmt.Errorf("record velocity: %w", err)
	}
	return nil
}
