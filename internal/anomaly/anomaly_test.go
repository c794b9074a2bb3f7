package anomaly

import (
	"testing"

	"github.com/smallbiznis/tokenledger/internal/config"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T, maxCredits, maxTokens int64) *Guard {
	t.Helper()
	cfg := config.DefaultMeteringConfig()
	cfg.Anomaly = config.AnomalyConfig{MaxCreditsPerEvent: maxCredits, MaxTokensPerEvent: maxTokens}
	holder, err := config.NewStaticMeteringConfigHolder(cfg)
	require.NoError(t, err)
	return NewGuard(holder)
}

func TestCheckCreditCeiling(t *testing.T) {
	g := newGuard(t, 1000, 0)

	_, err := g.Check(ratingdomain.CostCalculation{TotalTokens: 10, TotalCredits: 1000}, Hint{})
	require.NoError(t, err)

	_, err = g.Check(ratingdomain.CostCalculation{TotalTokens: 10, TotalCredits: 1001}, Hint{})
	require.ErrorIs(t, err, ErrCostAnomaly)
	reason, ok := ReasonOf(err)
	assert.True(t, ok)
	assert.Equal(t, ReasonCreditCeilingExceeded, reason)
}

func TestCheckTokenCeiling(t *testing.T) {
	g := newGuard(t, 0, 100)

	_, err := g.Check(ratingdomain.CostCalculation{TotalTokens: 101}, Hint{})
	require.ErrorIs(t, err, ErrCostAnomaly)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonTokenCeilingExceeded, reason)
}

func TestCheckDisabledCeilings(t *testing.T) {
	g := newGuard(t, 0, 0)
	res, err := g.Check(ratingdomain.CostCalculation{TotalTokens: 1 << 40, TotalCredits: 1 << 50}, Hint{})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestCheckZeroUsageOnPaidCallIsSoft(t *testing.T) {
	g := newGuard(t, 1000, 1000)

	res, err := g.Check(ratingdomain.CostCalculation{IsPaidModel: true}, Hint{})
	require.NoError(t, err)
	assert.True(t, res.HasWarning(WarningSuspectedZeroUsage))

	res, err = g.Check(ratingdomain.CostCalculation{}, Hint{PaidTier: true})
	require.NoError(t, err)
	assert.True(t, res.HasWarning(WarningSuspectedZeroUsage))

	res, err = g.Check(ratingdomain.CostCalculation{}, Hint{})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	res, err = g.Check(ratingdomain.CostCalculation{TotalTokens: 5, IsPaidModel: true}, Hint{})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestCheckFollowsReloadedConfig(t *testing.T) {
	cfg := config.DefaultMeteringConfig()
	holder, err := config.NewStaticMeteringConfigHolder(cfg)
	require.NoError(t, err)
	g := NewGuard(holder)

	calc := ratingdomain.CostCalculation{TotalTokens: 10, TotalCredits: 600}
	_, err = g.Check(calc, Hint{})
	require.NoError(t, err)

	cfg.Anomaly.MaxCreditsPerEvent = 500
	require.NoError(t, holder.Set(cfg))
	_, err = g.Check(calc, Hint{})
	assert.ErrorIs(t, err, ErrCostAnomaly)
}
