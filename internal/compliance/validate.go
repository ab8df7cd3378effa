package compliance

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the number of fractional digits the ledger's smallest
// unit supports (MNEE uses 6, like USDC).
const AmountDecimals = 6

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is 0x followed by exactly 40 hex
// characters. No checksum validation.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// normalizeAddress lowercases an address so the same wallet always maps to
// the same whitelist, velocity and audit rows.
func normalizeAddress(s string) string {
	return strings.ToLower(s)
}

// IsPositiveAmount reports whether d is strictly positive and representable
// in the ledger's smallest unit without precision loss. Trailing zeros past
// the sixth place are fine; a nonzero seventh digit is not.
func IsPositiveAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(AmountDecimals))
}
