package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/store"
	"github.com/shopspring/decimal"
)

type BudgetRepo struct {
	db *DB
}

func NewBudgetRepo(db *DB) *BudgetRepo {
	return &BudgetRepo{db: db}
}

func (r *BudgetRepo) Get(ctx context.Context, category model.Category) (*model.BudgetCategory, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var b model.BudgetCategory
	err := r.db.QueryRowContext(ctx, `
		SELECT category, monthly_limit, current_spent, updated_at
		FROM budgets
		WHERE category = $1
	`, category).Scan(&b.Category, &b.MonthlyLimit, &b.CurrentSpent, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return &b, nil
}

func (r *BudgetRepo) List(ctx context.Context) ([]model.BudgetCategory, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, monthly_limit, current_spent, updated_at
		FROM budgets
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []model.BudgetCategory
	for rows.Next() {
		var b model.BudgetCategory
		if err := rows.Scan(&b.Category, &b.MonthlyLimit, &b.CurrentSpent, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// IncrementSpentTx adds amount to current_spent inside tx. The WHERE clause
// guards the monthly limit at the database, so two concurrent spends cannot
// both succeed off the same stale remaining-budget read.
func (r *BudgetRepo) IncrementSpentTx(ctx context.Context, tx *sql.Tx, category model.Category, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE budgets
		SET current_spent = current_spent + $2::numeric,
			updated_at = now()
		WHERE category = $1
		  AND current_spent + $2::numeric <= monthly_limit
	`, category, amount.String())
	if err != nil {
		return fmt.Errorf("increment budget spent: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment budget spent rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("category %s amount %s: %w", category, amount, store.ErrBudgetExceeded)
	}
	return nil
}
