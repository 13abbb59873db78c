package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/jstittsworth/lineup-engine/internal/optimizer"
)

// PoolService trims a raw player pool down to the candidates worth
// optimizing over. Offense keeps the top of each position's projection
// distribution; defenses only lose the bottom tail.
type PoolService struct {
	logger *logrus.Logger
}

// NewPoolService creates a new pool service
func NewPoolService(logger *logrus.Logger) *PoolService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PoolService{logger: logger}
}

// TrimOptions controls pool trimming
type TrimOptions struct {
	// OffenseQuantile is the projection quantile an offensive player must
	// reach to stay in the pool.
	OffenseQuantile float64 `json:"offense_quantile"`
	// DefenseQuantile is the floor quantile for DST units.
	DefenseQuantile float64 `json:"defense_quantile"`
	// MinSalary and MaxSalary bound player salaries when positive.
	MinSalary int `json:"min_salary"`
	MaxSalary int `json:"max_salary"`
	// ExcludeTeams drops every player on the listed teams.
	ExcludeTeams []string `json:"exclude_teams"`
}

// DefaultOffenseQuantile keeps the top quarter of each offensive position
const DefaultOffenseQuantile = 0.75

// DefaultDefenseQuantile drops only the bottom quarter of defenses
const DefaultDefenseQuantile = 0.25

// minGroupSize is the position-group size below which the quantile cut is
// skipped so short slates stay feasible
const minGroupSize = 5

func (o TrimOptions) withDefaults() TrimOptions {
	if o.OffenseQuantile <= 0 {
		o.OffenseQuantile = DefaultOffenseQuantile
	}
	if o.DefenseQuantile <= 0 {
		o.DefenseQuantile = DefaultDefenseQuantile
	}
	return o
}

// Validate checks trim options for out-of-range values
func (o TrimOptions) Validate() error {
	if o.OffenseQuantile < 0 || o.OffenseQuantile >= 1 {
		return fmt.Errorf("offense quantile must be in [0, 1), got %f", o.OffenseQuantile)
	}
	if o.DefenseQuantile < 0 || o.DefenseQuantile >= 1 {
		return fmt.Errorf("defense quantile must be in [0, 1), got %f", o.DefenseQuantile)
	}
	if o.MinSalary > 0 && o.MaxSalary > 0 && o.MinSalary > o.MaxSalary {
		return fmt.Errorf("min salary %d exceeds max salary %d", o.MinSalary, o.MaxSalary)
	}
	return nil
}

// TrimResult reports what survived the trim and the projection thresholds
// applied per position
type TrimResult struct {
	Players    []optimizer.Player             `json:"players"`
	Removed    int                            `json:"removed"`
	Thresholds map[optimizer.Position]float64 `json:"thresholds"`
}

// Trim filters the pool by salary and team, then cuts each position group
// at its projection quantile. Input order is preserved for players that
// survive.
func (s *PoolService) Trim(players []optimizer.Player, opts TrimOptions) (*TrimResult, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(opts.ExcludeTeams))
	for _, team := range opts.ExcludeTeams {
		excluded[strings.ToUpper(strings.TrimSpace(team))] = true
	}

	filtered := make([]optimizer.Player, 0, len(players))
	for _, p := range players {
		if excluded[strings.ToUpper(p.Team)] {
			continue
		}
		if opts.MinSalary > 0 && p.Salary < opts.MinSalary {
			continue
		}
		if opts.MaxSalary > 0 && p.Salary > opts.MaxSalary {
			continue
		}
		filtered = append(filtered, p)
	}

	result := &TrimResult{
		Thresholds: make(map[optimizer.Position]float64),
	}

	// Per-position projection cut. Tiny groups pass through untouched.
	keep := make(map[string]bool, len(filtered))
	byPosition := make(map[optimizer.Position][]optimizer.Player)
	for _, p := range filtered {
		byPosition[p.Position] = append(byPosition[p.Position], p)
	}

	for position, group := range byPosition {
		if len(group) < minGroupSize {
			for _, p := range group {
				keep[p.Key()] = true
			}
			continue
		}

		quantile := opts.OffenseQuantile
		if position == optimizer.PositionDST {
			quantile = opts.DefenseQuantile
		}

		projections := make([]float64, len(group))
		for i, p := range group {
			projections[i] = p.ProjectedPoints
		}
		sort.Float64s(projections)
		threshold := stat.Quantile(quantile, stat.Empirical, projections, nil)
		result.Thresholds[position] = threshold

		for _, p := range group {
			if p.ProjectedPoints >= threshold {
				keep[p.Key()] = true
			}
		}
	}

	for _, p := range filtered {
		if keep[p.Key()] {
			result.Players = append(result.Players, p)
		}
	}
	result.Removed = len(players) - len(result.Players)

	s.logger.WithFields(logrus.Fields{
		"input":   len(players),
		"kept":    len(result.Players),
		"removed": result.Removed,
	}).Debug("Player pool trimmed")
	return result, nil
}

// PositionSummary aggregates one position group of a pool
type PositionSummary struct {
	Count     int     `json:"count"`
	MinSalary int     `json:"min_salary"`
	MaxSalary int     `json:"max_salary"`
	AvgPoints float64 `json:"avg_points"`
}

// Summarize reports per-position counts, salary ranges, and mean
// projections for a pool
func (s *PoolService) Summarize(players []optimizer.Player) map[optimizer.Position]PositionSummary {
	byPosition := make(map[optimizer.Position][]optimizer.Player)
	for _, p := range players {
		byPosition[p.Position] = append(byPosition[p.Position], p)
	}

	summaries := make(map[optimizer.Position]PositionSummary, len(byPosition))
	for position, group := range byPosition {
		summary := PositionSummary{
			Count:     len(group),
			MinSalary: group[0].Salary,
			MaxSalary: group[0].Salary,
		}
		projections := make([]float64, len(group))
		for i, p := range group {
			projections[i] = p.ProjectedPoints
			if p.Salary < summary.MinSalary {
				summary.MinSalary = p.Salary
			}
			if p.Salary > summary.MaxSalary {
				summary.MaxSalary = p.Salary
			}
		}
		summary.AvgPoints = stat.Mean(projections, nil)
		summaries[position] = summary
	}
	return summaries
}
