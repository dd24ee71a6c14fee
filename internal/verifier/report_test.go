package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSummary(t *testing.T) {
	t.Run("empty checks pass", func(t *testing.T) {
		s := DeriveSummary(nil)
		assert.Equal(t, 0, s.TotalChecks)
		assert.Equal(t, StatusPass, s.OverallStatus)
	})

	t.Run("fail dominates warning", func(t *testing.T) {
		s := DeriveSummary([]Check{
			{Status: StatusPass},
			{Status: StatusWarning},
			{Status: StatusFail},
		})
		assert.Equal(t, 3, s.TotalChecks)
		assert.Equal(t, 1, s.PassCount)
		assert.Equal(t, 1, s.WarningCount)
		assert.Equal(t, 1, s.FailCount)
		assert.Equal(t, StatusFail, s.OverallStatus)
	})

	t.Run("warning dominates pass", func(t *testing.T) {
		s := DeriveSummary([]Check{
			{Status: StatusPass},
			{Status: StatusWarning},
		})
		assert.Equal(t, StatusWarning, s.OverallStatus)
	})

	t.Run("unknown statuses are not counted", func(t *testing.T) {
		s := DeriveSummary([]Check{
			{Status: "skipped"},
			{Status: StatusPass},
		})
		assert.Equal(t, 2, s.TotalChecks)
		assert.Equal(t, 1, s.PassCount)
		assert.Equal(t, 0, s.WarningCount)
		assert.Equal(t, 0, s.FailCount)
		assert.Equal(t, StatusPass, s.OverallStatus)
	})
}
