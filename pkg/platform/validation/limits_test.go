package validation

import (
	"strings"
	"testing"

	dErrors "edgeguard/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

// LimitsSuite tests the validation helper functions.
//
// Justification: These are trust-boundary validators. The invariants
// "max+1 must fail" and "max must pass" are security-critical.
type LimitsSuite struct {
	suite.Suite
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsSuite))
}

func (s *LimitsSuite) TestCheckStringLength() {
	s.Run("passes when length equals max", func() {
		str := strings.Repeat("a", MaxReasonLength)
		err := CheckStringLength("reason", str, MaxReasonLength)
		s.NoError(err)
	})

	s.Run("passes for empty string", func() {
		err := CheckStringLength("reason", "", MaxReasonLength)
		s.NoError(err)
	})

	s.Run("fails when length exceeds max", func() {
		str := strings.Repeat("a", MaxReasonLength+1)
		err := CheckStringLength("reason", str, MaxReasonLength)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "reason exceeds max length of 500")
	})
}

func (s *LimitsSuite) TestParseIntInRange() {
	s.Run("empty value yields default", func() {
		n, err := ParseIntInRange("hours", "", DefaultStatsHours, 1, MaxStatsHours)
		s.Require().NoError(err)
		s.Equal(24, n)
	})

	s.Run("bounds are inclusive", func() {
		n, err := ParseIntInRange("hours", "1", DefaultStatsHours, 1, MaxStatsHours)
		s.Require().NoError(err)
		s.Equal(1, n)

		n, err = ParseIntInRange("hours", "720", DefaultStatsHours, 1, MaxStatsHours)
		s.Require().NoError(err)
		s.Equal(720, n)
	})

	s.Run("fails outside range", func() {
		for _, raw := range []string{"0", "721", "-5"} {
			_, err := ParseIntInRange("hours", raw, DefaultStatsHours, 1, MaxStatsHours)
			s.Require().Error(err, raw)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
			s.Contains(err.Error(), "hours must be between 1 and 720")
		}
	})

	s.Run("fails on non-integer", func() {
		_, err := ParseIntInRange("hours", "twelve", DefaultStatsHours, 1, MaxStatsHours)
		s.Require().Error(err)
		s.Contains(err.Error(), "hours must be an integer")
	})
}
