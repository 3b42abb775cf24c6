package utils

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of decimal places of the ledger's token
const TokenDecimals = 8

// FormatTokens renders an amount in the ledger's smallest unit as whole tokens (e.g. 1.5 for 150000000)
func FormatTokens(amount uint64) string {
	return fromUint64(amount).Shift(-TokenDecimals).String()
}

// ParseTokens converts a token string such as "0.01" into the ledger's smallest unit
func ParseTokens(value string) (uint64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("token amount %q cannot be negative", value)
	}
	units := d.Shift(TokenDecimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("token amount %q has more than %d decimal places", value, TokenDecimals)
	}
	if units.GreaterThan(fromUint64(math.MaxUint64)) {
		return 0, fmt.Errorf("token amount %q is too large", value)
	}
	return units.BigInt().Uint64(), nil
}

// FormatShortNotation formats a number using short notation (e.g., 50k instead of 50000)
func FormatShortNotation(value uint64) string {
	switch {
	case value >= 1_000_000_000_000:
		return fmt.Sprintf("%.2fT", float64(value)/1_000_000_000_000)
	case value >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(value)/1_000_000_000)
	case value >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(value)/1_000_000)
	case value >= 10_000:
		// No decimal places between 10k and 1M
		return fmt.Sprintf("%dk", value/1_000)
	case value >= 1_000:
		// One decimal place under 10k
		return fmt.Sprintf("%.1fk", float64(value)/1_000)
	default:
		return fmt.Sprintf("%d", value)
	}
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
