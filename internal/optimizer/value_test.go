package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotate_ValueStrategy(t *testing.T) {
	players := []Player{
		{Name: "Bargain Back", Team: "DAL", Position: PositionRB, Salary: 4000, ProjectedPoints: 20.0},
		{Name: "Premium Back", Team: "SF", Position: PositionRB, Salary: 10000, ProjectedPoints: 20.0},
	}

	annotation, err := Annotate(players, StrategyConfig{Strategy: StrategyValue})
	require.NoError(t, err)
	require.Len(t, annotation.Players, 2)
	assert.Nil(t, annotation.Degraded)

	// Points per $1000: same projection, cheaper salary ranks higher
	assert.InDelta(t, 5.0, annotation.Players[0].Utility, 1e-9)
	assert.InDelta(t, 2.0, annotation.Players[1].Utility, 1e-9)
	assert.Greater(t, annotation.Players[0].Utility, annotation.Players[1].Utility,
		"the $4,000 player should outrank the $10,000 player at equal projection")
}

func TestAnnotate_ValueStrategyZeroSalary(t *testing.T) {
	players := []Player{
		{Name: "Free Agent", Team: "NE", Position: PositionWR, Salary: 0, ProjectedPoints: 8.0},
	}

	annotation, err := Annotate(players, StrategyConfig{Strategy: StrategyValue})
	require.NoError(t, err)

	// Salary floor of 1 guards the division
	assert.InDelta(t, 8000.0, annotation.Players[0].Utility, 1e-9)
}

func TestAnnotate_UpsideAndSafe(t *testing.T) {
	players := []Player{
		{Name: "Boom Or Bust", Team: "MIA", Position: PositionWR, Salary: 6000, ProjectedPoints: 10.0, VarianceProxy: floatPtr(4.0)},
	}

	tests := []struct {
		name     string
		strategy Strategy
		kWeight  float64
		expected float64
	}{
		{name: "upside default k", strategy: StrategyUpside, kWeight: 0, expected: 14.0},
		{name: "upside k=2", strategy: StrategyUpside, kWeight: 2.0, expected: 18.0},
		{name: "safe default k", strategy: StrategySafe, kWeight: 0, expected: 6.0},
		{name: "safe k=2", strategy: StrategySafe, kWeight: 2.0, expected: 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			annotation, err := Annotate(players, StrategyConfig{Strategy: tt.strategy, KWeight: tt.kWeight})
			require.NoError(t, err)
			assert.Nil(t, annotation.Degraded)
			assert.InDelta(t, tt.expected, annotation.Players[0].Utility, 1e-9)
		})
	}
}

func TestAnnotate_DegradedWithoutVariance(t *testing.T) {
	players := []Player{
		{Name: "Known Quantity", Team: "GB", Position: PositionTE, Salary: 3000, ProjectedPoints: 9.0, VarianceProxy: floatPtr(2.0)},
		{Name: "Mystery Man", Team: "CHI", Position: PositionTE, Salary: 2800, ProjectedPoints: 7.5},
	}

	for _, strategy := range []Strategy{StrategyUpside, StrategySafe} {
		t.Run(string(strategy), func(t *testing.T) {
			annotation, err := Annotate(players, StrategyConfig{Strategy: strategy, KWeight: 2.0})
			require.NoError(t, err)
			require.NotNil(t, annotation.Degraded, "missing variance should degrade, not fail")
			assert.Equal(t, strategy, annotation.Degraded.Strategy)
			assert.Contains(t, annotation.Degraded.Reason, "1 of 2")

			// Degraded mode scores projection only for the whole pool
			assert.InDelta(t, 9.0, annotation.Players[0].Utility, 1e-9)
			assert.InDelta(t, 7.5, annotation.Players[1].Utility, 1e-9)
		})
	}
}

func TestAnnotate_RandomDeterministicBySeed(t *testing.T) {
	players := buildPool(3, 3, 3, 2, 2)

	first, err := Annotate(players, StrategyConfig{Strategy: StrategyRandom, Seed: 42})
	require.NoError(t, err)
	second, err := Annotate(players, StrategyConfig{Strategy: StrategyRandom, Seed: 42})
	require.NoError(t, err)

	require.Equal(t, len(first.Players), len(second.Players))
	for i := range first.Players {
		assert.Equal(t, first.Players[i].Utility, second.Players[i].Utility,
			"same seed must reproduce the same draw for %s", first.Players[i].Name)
	}
}

func TestAnnotate_Errors(t *testing.T) {
	_, err := Annotate(nil, StrategyConfig{Strategy: StrategyValue})
	assert.Error(t, err, "empty pool should be rejected")

	_, err = Annotate(buildPool(1, 0, 0, 0, 0), StrategyConfig{Strategy: "chaos"})
	assert.Error(t, err, "unknown strategy should be rejected")
}

func TestAnnotate_NegativeProjectionAllowed(t *testing.T) {
	players := []Player{
		{Name: "Bad Week", Team: "NYJ", Position: PositionDST, Salary: 2500, ProjectedPoints: -2.0},
	}

	annotation, err := Annotate(players, StrategyConfig{Strategy: StrategyValue})
	require.NoError(t, err)
	assert.Less(t, annotation.Players[0].Utility, 0.0,
		"negative projections stay negative; ranking must not clamp them")
}
