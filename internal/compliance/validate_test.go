package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"valid lowercase", "0xabc1000000000000000000000000000000000001", true},
		{"valid mixed case", "0xAbC1000000000000000000000000000000000001", true},
		{"too short", "0xabc100", false},
		{"too long", "0xabc10000000000000000000000000000000000011", false},
		{"missing prefix", "abc1000000000000000000000000000000000001ab", false},
		{"non-hex characters", "0xzzz1000000000000000000000000000000000001", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAddress(tt.address))
		})
	}
}

func TestIsPositiveAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{"positive integer", "1500", true},
		{"six decimal places", "0.000001", true},
		{"trailing zeros past six places", "50.0000000", true},
		{"fractional with trailing zeros", "1.2300000000", true},
		{"zero", "0", false},
		{"zero with trailing zeros", "0.0000000", false},
		{"negative", "-25", false},
		{"too much precision", "0.0000001", false},
		{"nonzero seventh digit after zeros", "50.0000001", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPositiveAmount(dec(tt.amount)))
		})
	}
}
