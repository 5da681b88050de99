package validator

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidISIN      = errors.New("invalid isin")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidDateRange = errors.New("from date is after to date")
)

var (
	symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9&._\-]{0,39}$`)
	isinRegex   = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
)

var dateLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006", "2006/01/02"}

var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return ErrInvalidSymbol
	}
	return nil
}

// ValidateISIN accepts a blank value; the column is optional.
func ValidateISIN(isin string) error {
	if isin == "" {
		return nil
	}
	if !isinRegex.MatchString(isin) {
		return ErrInvalidISIN
	}
	return nil
}

// ParseDate reads a calendar date in UTC.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// ValidateDateRange accepts open-ended ranges.
func ValidateDateRange(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return ErrInvalidDateRange
	}
	return nil
}
