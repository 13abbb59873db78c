package optimizer

import (
	"fmt"
	"math/rand"
)

// Annotation is the value model's output: every player tagged with the
// utility the optimizer maximizes, plus a warning when a strategy ran in
// degraded mode.
type Annotation struct {
	Players  []AnnotatedPlayer
	Degraded *DegradedStrategyWarning
}

// Annotate computes a per-strategy utility for every player. It is a pure
// function over its inputs: players are annotated in input order and the
// random strategy draws from the injected seed, so identical inputs
// produce identical annotations.
//
// The upside and safe strategies require a variance proxy on every
// player; when any player lacks one the whole pool falls back to
// projection-only utility and the annotation carries a
// DegradedStrategyWarning instead of failing.
func Annotate(players []Player, cfg StrategyConfig) (*Annotation, error) {
	if len(players) == 0 {
		return nil, fmt.Errorf("cannot annotate an empty player pool")
	}
	strategy, err := ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}

	annotation := &Annotation{Players: make([]AnnotatedPlayer, 0, len(players))}

	k := cfg.kWeight()
	switch strategy {
	case StrategyValue:
		for _, p := range players {
			annotation.Players = append(annotation.Players, AnnotatedPlayer{Player: p, Utility: valueUtility(p)})
		}
	case StrategyUpside, StrategySafe:
		if missing := countMissingVariance(players); missing > 0 {
			annotation.Degraded = &DegradedStrategyWarning{
				Strategy: strategy,
				Reason:   fmt.Sprintf("variance proxy missing for %d of %d players", missing, len(players)),
			}
			for _, p := range players {
				annotation.Players = append(annotation.Players, AnnotatedPlayer{Player: p, Utility: p.ProjectedPoints})
			}
			break
		}
		sign := 1.0
		if strategy == StrategySafe {
			sign = -1.0
		}
		for _, p := range players {
			utility := p.ProjectedPoints + sign*k*p.Variance()
			annotation.Players = append(annotation.Players, AnnotatedPlayer{Player: p, Utility: utility})
		}
	case StrategyRandom:
		rng := rand.New(rand.NewSource(cfg.Seed))
		for _, p := range players {
			annotation.Players = append(annotation.Players, AnnotatedPlayer{Player: p, Utility: rng.Float64() * 100})
		}
	}

	return annotation, nil
}

// valueUtility scores points per $1000 of salary. The max guard keeps
// zero-salary players from dividing by zero.
func valueUtility(p Player) float64 {
	salary := p.Salary
	if salary < 1 {
		salary = 1
	}
	return p.ProjectedPoints / float64(salary) * 1000
}

func countMissingVariance(players []Player) int {
	missing := 0
	for _, p := range players {
		if !p.HasVariance() {
			missing++
		}
	}
	return missing
}
