package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/shopspring/decimal"
)

// AuditRepo persists compliance records. Entries are append-only: there is no
// update or delete path, by construction.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

const auditInsertSQL = `
	INSERT INTO audit_logs (id, proposal_text, vendor_name, vendor_address, amount, category, decision, reasoning, ai_confidence, transaction_hash, created_at)
	VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9::numeric, $10, $11)
`

func (r *AuditRepo) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, auditInsertSQL, auditInsertArgs(entry)...)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (r *AuditRepo) AppendTx(ctx context.Context, tx *sql.Tx, entry *model.AuditLogEntry) error {
	_, err := tx.ExecContext(ctx, auditInsertSQL, auditInsertArgs(entry)...)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func auditInsertArgs(entry *model.AuditLogEntry) []any {
	return []any{
		entry.ID, entry.ProposalText, entry.VendorName, entry.VendorAddress,
		entry.Amount.String(), entry.Category, entry.Decision, entry.Reasoning,
		entry.AIConfidence.String(), entry.TransactionHash, entry.CreatedAt,
	}
}

func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]model.AuditLogEntry, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, proposal_text, vendor_name, vendor_address, amount, category, decision, reasoning, ai_confidence, transaction_hash, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		if err := rows.Scan(
			&e.ID, &e.ProposalText, &e.VendorName, &e.VendorAddress,
			&e.Amount, &e.Category, &e.Decision, &e.Reasoning,
			&e.AIConfidence, &e.TransactionHash, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *AuditRepo) ExecutedSpendByCategory(ctx context.Context) (map[model.Category]decimal.Decimal, error) {
	ctx, cancel := withTimeout(ctx, LongQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COALESCE(SUM(amount), 0)
		FROM audit_logs
		WHERE decision = $1 AND transaction_hash IS NOT NULL
		GROUP BY category
	`, model.DecisionApproved)
	if err != nil {
		return nil, fmt.Errorf("query executed spend: %w", err)
	}
	defer rows.Close()

	spend := make(map[model.Category]decimal.Decimal)
	for rows.Next() {
		var (
			category model.Category
			total    decimal.Decimal
		)
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scan executed spend: %w", err)
		}
		spend[category] = total
	}
	return spend, rows.Err()
}
