package validation

import (
	"fmt"
	"strconv"

	dErrors "edgeguard/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum admin request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// Admin input limits
const (
	// MaxReasonLength bounds the free-text reason stored with a block.
	MaxReasonLength = 500

	// MaxActorLength bounds the X-Admin-Actor value recorded on blocks.
	MaxActorLength = 64

	// MaxBlockHours is the longest timed block an admin can set (one year).
	MaxBlockHours = 24 * 365

	// MaxStatsHours is the widest window the stats endpoint aggregates (30 days).
	MaxStatsHours = 720

	// DefaultStatsHours is used when the stats request names no window.
	DefaultStatsHours = 24

	// MaxReportDays bounds compliance report periods.
	MaxReportDays = 366
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// ParseIntInRange parses raw as an integer in [min, max]. An empty raw
// yields def.
func ParseIntInRange(fieldName, raw string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be an integer", fieldName))
	}
	if n < min || n > max {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be between %d and %d", fieldName, min, max))
	}
	return n, nil
}
