package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchHeuristicFirstRuleWins(t *testing.T) {
	cfg := DefaultMeteringConfig()

	tier, ok := cfg.MatchHeuristic("GPT-4-0613")
	require.True(t, ok)
	assert.Equal(t, "0.03", tier.InputPricePerK)

	tier, ok = cfg.MatchHeuristic("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Equal(t, "0.00015", tier.InputPricePerK)

	tier, ok = cfg.MatchHeuristic("gpt-3.5-turbo")
	require.True(t, ok)
	assert.Equal(t, "0.0015", tier.InputPricePerK)

	_, ok = cfg.MatchHeuristic("foo-bar")
	assert.False(t, ok)
}

func TestMatchHeuristicFallsBackToDefaultTier(t *testing.T) {
	cfg := DefaultMeteringConfig()
	cfg.DefaultTier = &PriceTier{InputPricePerK: "0.001", OutputPricePerK: "0.002", ServiceType: "custom"}

	tier, ok := cfg.MatchHeuristic("foo-bar")
	require.True(t, ok)
	assert.Equal(t, "custom", tier.ServiceType)
}

func TestMeteringConfigHolderRejectsInvalidConfig(t *testing.T) {
	holder, err := NewStaticMeteringConfigHolder(DefaultMeteringConfig())
	require.NoError(t, err)

	bad := DefaultMeteringConfig()
	bad.Heuristics = append(bad.Heuristics, HeuristicRule{Match: "x", PriceTier: PriceTier{InputPricePerK: "-1", OutputPricePerK: "0"}})
	require.Error(t, holder.Set(bad))

	bad = DefaultMeteringConfig()
	bad.Anomaly.MaxTokensPerEvent = -5
	require.Error(t, holder.Set(bad))

	// previous config is kept
	assert.True(t, holder.Get().AutoCreate)
	assert.Len(t, holder.Get().Heuristics, len(DefaultMeteringConfig().Heuristics))
}
