//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/store"
	"github.com/mshadianto/mnee-sentinel/internal/store/postgres"
)

func testDB(t *testing.T) *postgres.DB {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url != "" {
		db, err := postgres.New(postgres.Config{
			URL:             url,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Minute,
		})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}
	// Use testcontainers (Docker-based ephemeral PostgreSQL).
	return setupTestContainer(t)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedBudget(t *testing.T, db *postgres.DB, category model.Category, limit, spent string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO budgets (category, monthly_limit, current_spent)
		VALUES ($1, $2::numeric, $3::numeric)
		ON CONFLICT (category) DO UPDATE SET monthly_limit = EXCLUDED.monthly_limit, current_spent = EXCLUDED.current_spent
	`, category, limit, spent)
	require.NoError(t, err)
}

// ---------- VendorRepo ----------

func TestVendorRepo_UpsertAndFind(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewVendorRepo(db)
	ctx := context.Background()

	addr := "0x1111111111111111111111111111111111111111"
	err := repo.Upsert(ctx, &model.WhitelistedVendor{
		WalletAddress:       addr,
		VendorName:          "PT Cloud Nusantara",
		Category:            model.CategorySoftware,
		MaxTransactionLimit: dec("5000"),
		IsActive:            true,
	})
	require.NoError(t, err)

	got, err := repo.FindByAddress(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PT Cloud Nusantara", got.VendorName)
	assert.Equal(t, model.CategorySoftware, got.Category)
	assert.True(t, got.MaxTransactionLimit.Equal(dec("5000")))
	assert.True(t, got.IsActive)
}

func TestVendorRepo_FindIsCaseInsensitive(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewVendorRepo(db)
	ctx := context.Background()

	addr := "0x2222222222222222222222222222222222222222"
	require.NoError(t, repo.Upsert(ctx, &model.WhitelistedVendor{
		WalletAddress:       addr,
		VendorName:          "PT Data Sejahtera",
		Category:            model.CategoryData,
		MaxTransactionLimit: dec("1000"),
		IsActive:            true,
	}))

	upper, err := repo.FindByAddress(ctx, "0X2222222222222222222222222222222222222222")
	require.NoError(t, err)
	require.NotNil(t, upper)
	assert.Equal(t, "PT Data Sejahtera", upper.VendorName)
}

func TestVendorRepo_FindUnknownReturnsNil(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewVendorRepo(db)

	got, err := repo.FindByAddress(context.Background(), "0x9999999999999999999999999999999999999999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVendorRepo_UpsertUpdatesInPlace(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewVendorRepo(db)
	ctx := context.Background()

	addr := "0x3333333333333333333333333333333333333333"
	require.NoError(t, repo.Upsert(ctx, &model.WhitelistedVendor{
		WalletAddress: addr, VendorName: "PT Old", Category: model.CategoryLegal,
		MaxTransactionLimit: dec("100"), IsActive: true,
	}))
	require.NoError(t, repo.Upsert(ctx, &model.WhitelistedVendor{
		WalletAddress: addr, VendorName: "PT New", Category: model.CategoryLegal,
		MaxTransactionLimit: dec("250"), IsActive: false,
	}))

	got, err := repo.FindByAddress(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PT New", got.VendorName)
	assert.True(t, got.MaxTransactionLimit.Equal(dec("250")))
	assert.False(t, got.IsActive)
}

func TestVendorRepo_ListActiveExcludesInactive(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewVendorRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &model.WhitelistedVendor{
		WalletAddress: "0x4444444444444444444444444444444444444441", VendorName: "PT Active",
		Category: model.CategoryFX, MaxTransactionLimit: dec("10"), IsActive: true,
	}))
	require.NoError(t, repo.Upsert(ctx, &model.WhitelistedVendor{
		WalletAddress: "0x4444444444444444444444444444444444444442", VendorName: "PT Inactive",
		Category: model.CategoryFX, MaxTransactionLimit: dec("10"), IsActive: false,
	}))

	vendors, err := repo.ListActive(ctx)
	require.NoError(t, err)
	for _, v := range vendors {
		assert.True(t, v.IsActive)
		assert.NotEqual(t, "PT Inactive", v.VendorName)
	}
}

// ---------- BudgetRepo ----------

func TestBudgetRepo_GetAndList(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewBudgetRepo(db)
	ctx := context.Background()

	seedBudget(t, db, model.CategoryTravel, "5000", "1200")

	got, err := repo.Get(ctx, model.CategoryTravel)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.MonthlyLimit.Equal(dec("5000")))
	assert.True(t, got.CurrentSpent.Equal(dec("1200")))
	assert.True(t, got.Remaining().Equal(dec("3800")))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)
}

func TestBudgetRepo_GetMissingReturnsNil(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewBudgetRepo(db)

	got, err := repo.Get(context.Background(), model.CategoryRemittance)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBudgetRepo_IncrementGuard(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewBudgetRepo(db)
	ctx := context.Background()

	seedBudget(t, db, model.CategoryConsulting, "1000", "900")

	// Exactly filling the budget is allowed.
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.IncrementSpentTx(ctx, tx, model.CategoryConsulting, dec("100")))
	require.NoError(t, tx.Commit())

	// Any further spend trips the in-database guard.
	tx2, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	err = repo.IncrementSpentTx(ctx, tx2, model.CategoryConsulting, dec("0.000001"))
	assert.ErrorIs(t, err, store.ErrBudgetExceeded)
	require.NoError(t, tx2.Rollback())

	got, err := repo.Get(ctx, model.CategoryConsulting)
	require.NoError(t, err)
	assert.True(t, got.CurrentSpent.Equal(dec("1000")))
}

func TestBudgetRepo_FractionalSpendAccumulatesExactly(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewBudgetRepo(db)
	ctx := context.Background()

	seedBudget(t, db, model.CategoryLegal, "1000", "0")

	// Three spends of 123.456789 MNEE must round-trip through NUMERIC(24,6)
	// with no drift at the sixth decimal place.
	for i := 0; i < 3; i++ {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, repo.IncrementSpentTx(ctx, tx, model.CategoryLegal, dec("123.456789")))
		require.NoError(t, tx.Commit())
	}

	got, err := repo.Get(ctx, model.CategoryLegal)
	require.NoError(t, err)
	assert.True(t, got.CurrentSpent.Equal(dec("370.370367")),
		"expected 370.370367, got %s", got.CurrentSpent)
	assert.True(t, got.Remaining().Equal(dec("629.629633")),
		"expected 629.629633, got %s", got.Remaining())
}

func TestBudgetRepo_ConcurrentIncrementsNeverOverspend(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewBudgetRepo(db)
	ctx := context.Background()

	// 10 workers racing for a budget that only fits 5 of them.
	seedBudget(t, db, model.CategoryCybersecurity, "500", "0")

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				results <- err
				return
			}
			err = repo.IncrementSpentTx(ctx, tx, model.CategoryCybersecurity, dec("100"))
			if err != nil {
				tx.Rollback()
				results <- err
				return
			}
			results <- tx.Commit()
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrBudgetExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)

	got, err := repo.Get(ctx, model.CategoryCybersecurity)
	require.NoError(t, err)
	assert.True(t, got.CurrentSpent.Equal(dec("500")))
}

// ---------- VelocityRepo ----------

func TestVelocityRepo_RecordOpensAndIncrementsWindow(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewVelocityRepo(db)
	ctx := context.Background()

	addr := "0x5555555555555555555555555555555555555551"
	now := time.Now().UTC()
	floor := now.Add(-24 * time.Hour)

	for i := 0; i < 3; i++ {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, repo.RecordTx(ctx, tx, addr, dec("10"), now, floor))
		require.NoError(t, tx.Commit())
	}

	rec, err := repo.GetWindow(ctx, addr, floor)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 3, rec.TransactionCount)
	assert.True(t, rec.TotalAmount.Equal(dec("30")))
}

func TestVelocityRepo_ExpiredWindowIsReplaced(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewVelocityRepo(db)
	ctx := context.Background()

	addr := "0x5555555555555555555555555555555555555552"
	old := time.Now().UTC().Add(-48 * time.Hour)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.RecordTx(ctx, tx, addr, dec("10"), old, old.Add(-24*time.Hour)))
	require.NoError(t, tx.Commit())

	// The old window is invisible through the active-window read.
	now := time.Now().UTC()
	floor := now.Add(-24 * time.Hour)
	rec, err := repo.GetWindow(ctx, addr, floor)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// A new recording supersedes it in place with a fresh count.
	tx2, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.RecordTx(ctx, tx2, addr, dec("25"), now, floor))
	require.NoError(t, tx2.Commit())

	rec, err = repo.GetWindow(ctx, addr, floor)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TransactionCount)
	assert.True(t, rec.TotalAmount.Equal(dec("25")))
}

// ---------- AuditRepo ----------

func TestAuditRepo_AppendAndListRecent(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewAuditRepo(db)
	ctx := context.Background()

	hash := "0xsim0001"
	entries := []*model.AuditLogEntry{
		{
			ID: uuid.New(), ProposalText: "pay one", VendorName: "PT A",
			VendorAddress: "0x6666666666666666666666666666666666666661",
			Amount:        dec("100"), Category: model.CategoryOffice,
			Decision: model.DecisionApproved, Reasoning: "ok",
			AIConfidence: dec("0.9"), TransactionHash: &hash,
			CreatedAt: time.Now().UTC().Add(-time.Minute),
		},
		{
			ID: uuid.New(), ProposalText: "pay two", VendorName: "PT B",
			VendorAddress: "0x6666666666666666666666666666666666666662",
			Amount:        dec("50"), Category: model.CategoryOffice,
			Decision: model.DecisionRejected, Reasoning: "vendor not whitelisted",
			AIConfidence: dec("0.8"),
			CreatedAt:    time.Now().UTC(),
		},
	}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
	}

	got, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 2)
	// Newest first.
	assert.False(t, got[0].CreatedAt.Before(got[1].CreatedAt))
}

func TestAuditRepo_ExecutedSpendCountsOnlyExecutedApprovals(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewAuditRepo(db)
	ctx := context.Background()

	hash := "0xsim0002"
	mk := func(decision model.Decision, amount string, h *string) *model.AuditLogEntry {
		return &model.AuditLogEntry{
			ID: uuid.New(), ProposalText: "p", VendorName: "PT C",
			VendorAddress: "0x6666666666666666666666666666666666666663",
			Amount:        dec(amount), Category: model.CategoryFX,
			Decision: decision, Reasoning: "r", AIConfidence: dec("0.9"),
			TransactionHash: h, CreatedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, repo.Append(ctx, mk(model.DecisionApproved, "100", &hash)))
	require.NoError(t, repo.Append(ctx, mk(model.DecisionApproved, "40", nil)))   // approved but never executed
	require.NoError(t, repo.Append(ctx, mk(model.DecisionRejected, "999", nil))) // rejected

	sums, err := repo.ExecutedSpendByCategory(ctx)
	require.NoError(t, err)
	assert.True(t, sums[model.CategoryFX].Equal(dec("100")))
}
