package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
)

type VendorRepo struct {
	db *DB
}

func NewVendorRepo(db *DB) *VendorRepo {
	return &VendorRepo{db: db}
}

func (r *VendorRepo) FindByAddress(ctx context.Context, address string) (*model.WhitelistedVendor, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var v model.WhitelistedVendor
	err := r.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, vendor_name, category, max_transaction_limit, is_active, created_at, updated_at
		FROM whitelisted_vendors
		WHERE wallet_address = $1
	`, strings.ToLower(address)).Scan(
		&v.ID, &v.WalletAddress, &v.VendorName, &v.Category,
		&v.MaxTransactionLimit, &v.IsActive, &v.CreatedAt, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	return &v, nil
}

func (r *VendorRepo) Upsert(ctx context.Context, vendor *model.WhitelistedVendor) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO whitelisted_vendors (wallet_address, vendor_name, category, max_transaction_limit, is_active)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (wallet_address) DO UPDATE SET
			vendor_name = EXCLUDED.vendor_name,
			category = EXCLUDED.category,
			max_transaction_limit = EXCLUDED.max_transaction_limit,
			is_active = EXCLUDED.is_active,
			updated_at = now()
	`, strings.ToLower(vendor.WalletAddress), vendor.VendorName, vendor.Category,
		vendor.MaxTransactionLimit.String(), vendor.IsActive)
	if err != nil {
		return fmt.Errorf("upsert vendor: %w", err)
	}
	return nil
}

func (r *VendorRepo) ListActive(ctx context.Context) ([]model.WhitelistedVendor, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, wallet_address, vendor_name, category, max_transaction_limit, is_active, created_at, updated_at
		FROM whitelisted_vendors
		WHERE is_active = true
		ORDER BY vendor_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query vendors: %w", err)
	}
	defer rows.Close()

	var vendors []model.WhitelistedVendor
	for rows.Next() {
		var v model.WhitelistedVendor
		if err := rows.Scan(
			&v.ID, &v.WalletAddress, &v.VendorName, &v.Category,
			&v.MaxTransactionLimit, &v.IsActive, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}
