package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input string
		want  Category
		ok    bool
	}{
		{"Software", CategorySoftware, true},
		{"software", CategorySoftware, true},
		{"SOFTWARE", CategorySoftware, true},
		{"FX", CategoryFX, true},
		{"fx", CategoryFX, true},
		{"Cybersecurity", CategoryCybersecurity, true},
		{"Groceries", "", false},
		{"", "", false},
		{"Software ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCategory(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBudgetCategory_Remaining(t *testing.T) {
	b := BudgetCategory{
		Category:     CategoryTravel,
		MonthlyLimit: decimal.RequireFromString("5000"),
		CurrentSpent: decimal.RequireFromString("1200.50"),
	}
	assert.True(t, b.Remaining().Equal(decimal.RequireFromString("3799.50")))

	b.CurrentSpent = b.MonthlyLimit
	assert.True(t, b.Remaining().IsZero())
}
