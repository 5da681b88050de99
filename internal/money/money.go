package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount    = errors.New("amount is required")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrNotPositive    = errors.New("amount must be greater than zero")
)

// Parse reads a broker-formatted decimal. Thousands separators, surrounding quotes and
// a leading currency symbol are stripped before parsing.
func Parse(input string) (decimal.Decimal, error) {
	cleaned := normalize(input)
	if cleaned == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

// ParseOrZero treats a blank field as zero.
func ParseOrZero(input string) (decimal.Decimal, error) {
	if normalize(input) == "" {
		return decimal.Zero, nil
	}
	return Parse(input)
}

func ParseNonNegative(input string) (decimal.Decimal, error) {
	value, err := ParseOrZero(input)
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return value, nil
}

func ParsePositive(input string) (decimal.Decimal, error) {
	value, err := Parse(input)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, ErrNotPositive
	}
	return value, nil
}

// ParseOptional returns an invalid NullDecimal for a blank field.
func ParseOptional(input string) (decimal.NullDecimal, error) {
	if normalize(input) == "" {
		return decimal.NullDecimal{}, nil
	}
	value, err := Parse(input)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(value), nil
}

func normalize(input string) string {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.Trim(trimmed, "\"")
	trimmed = strings.ReplaceAll(trimmed, ",", "")
	trimmed = strings.TrimPrefix(trimmed, "₹")
	trimmed = strings.TrimPrefix(trimmed, "$")
	return strings.TrimSpace(trimmed)
}
