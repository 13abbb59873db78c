package optimizer

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// GenerateConfig tunes one multi-lineup generation run
type GenerateConfig struct {
	// Count is how many lineups to build.
	Count int
	// MaxOverlap is the largest number of players any two lineups in
	// the set may share.
	MaxOverlap int
	// RetryBudget bounds overlap-rejection retries per lineup index.
	RetryBudget int
	// PenaltyWeight scales the exposure penalty subtracted from a
	// player's utility per lineup that already contains it.
	PenaltyWeight float64
}

// DefaultRetryBudget is the overlap retry bound per lineup index
const DefaultRetryBudget = 10

// DefaultPenaltyWeight scales exposure penalties when unset
const DefaultPenaltyWeight = 1.0

func (c GenerateConfig) withDefaults() GenerateConfig {
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	if c.PenaltyWeight <= 0 {
		c.PenaltyWeight = DefaultPenaltyWeight
	}
	return c
}

// EventType labels the generator's state transitions
type EventType string

const (
	EventBuilding EventType = "building"
	EventRetrying EventType = "retrying_overlap"
	EventAccepted EventType = "accepted"
	EventSkipped  EventType = "skipped"
	EventDone     EventType = "done"
)

// Event reports generator progress for one lineup index
type Event struct {
	Type    EventType `json:"type"`
	Index   int       `json:"index"`
	Attempt int       `json:"attempt,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Lineup  *Lineup   `json:"lineup,omitempty"`
}

// ProgressFunc receives generator events as they happen
type ProgressFunc func(Event)

// Generator builds a diversified batch of lineups by repeatedly invoking
// the single-lineup optimizer with exposure-penalized utilities
type Generator struct {
	opt      *Optimizer
	cfg      GenerateConfig
	logger   *logrus.Logger
	progress ProgressFunc
}

// NewGenerator creates a generator over the given optimizer
func NewGenerator(opt *Optimizer, cfg GenerateConfig, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Generator{opt: opt, cfg: cfg.withDefaults(), logger: logger}
}

// OnProgress registers a callback for state-machine events. Events fire
// synchronously from Generate's goroutine.
func (g *Generator) OnProgress(fn ProgressFunc) {
	g.progress = fn
}

func (g *Generator) emit(ev Event) {
	if g.progress != nil {
		g.progress(ev)
	}
}

// Generate produces up to Count lineups whose pairwise overlap stays
// within MaxOverlap. Per-index optimizer failures and exhausted overlap
// retries become skip records, so a batch degrades gracefully instead of
// failing wholesale. The exposure map advances strictly sequentially
// between iterations.
func (g *Generator) Generate(players []Player, schema RosterSchema, strategy StrategyConfig) (*LineupSet, error) {
	if g.cfg.Count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", g.cfg.Count)
	}
	if g.cfg.MaxOverlap < 0 {
		return nil, fmt.Errorf("max overlap must be non-negative, got %d", g.cfg.MaxOverlap)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	for _, p := range players {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid player pool: %w", err)
		}
	}

	annotation, err := Annotate(players, strategy)
	if err != nil {
		return nil, err
	}

	set := &LineupSet{Exposure: make(map[string]int)}
	if annotation.Degraded != nil {
		set.Warnings = append(set.Warnings, annotation.Degraded.String())
	}

	baseUtility := make(map[string]float64, len(annotation.Players))
	for _, p := range annotation.Players {
		baseUtility[p.Key()] = p.Utility
	}

	for index := 1; index <= g.cfg.Count; index++ {
		retryPenalty := make(map[string]float64)
		resolved := false

		for attempt := 0; attempt <= g.cfg.RetryBudget; attempt++ {
			if attempt == 0 {
				g.emit(Event{Type: EventBuilding, Index: index})
			} else {
				g.emit(Event{Type: EventRetrying, Index: index, Attempt: attempt})
			}

			candidate, err := g.opt.OptimizeAnnotated(
				g.penalize(annotation.Players, set.Exposure, retryPenalty), schema)
			if err != nil {
				reason := err.Error()
				set.Skipped = append(set.Skipped, SkipRecord{Index: index, Reason: reason})
				g.emit(Event{Type: EventSkipped, Index: index, Reason: reason})
				g.logger.WithFields(logrus.Fields{
					"index":  index,
					"reason": reason,
				}).Warn("Lineup skipped: optimizer failure")
				resolved = true
				break
			}

			offenders := g.overlapOffenders(candidate, set.Lineups)
			if len(offenders) == 0 {
				candidate.TotalUtility = unpenalizedUtility(candidate, baseUtility)
				set.Lineups = append(set.Lineups, candidate)
				for _, p := range candidate.Players() {
					set.Exposure[p.Key()]++
				}
				g.emit(Event{Type: EventAccepted, Index: index, Lineup: &candidate})
				g.logger.WithFields(logrus.Fields{
					"index":        index,
					"total_salary": candidate.TotalSalary,
					"attempts":     attempt + 1,
				}).Debug("Lineup accepted")
				resolved = true
				break
			}

			// Penalize the offending overlap set harder and retry
			for _, key := range offenders {
				retryPenalty[key] += g.cfg.PenaltyWeight
			}
			g.logger.WithFields(logrus.Fields{
				"index":     index,
				"attempt":   attempt + 1,
				"offenders": len(offenders),
			}).Debug("Lineup rejected: overlap above budget")
		}

		if !resolved {
			overlapErr := &OverlapBudgetExhaustedError{
				Index:      index,
				Retries:    g.cfg.RetryBudget,
				MaxOverlap: g.cfg.MaxOverlap,
			}
			set.Skipped = append(set.Skipped, SkipRecord{Index: index, Reason: overlapErr.Error()})
			g.emit(Event{Type: EventSkipped, Index: index, Reason: overlapErr.Error()})
			g.logger.WithField("index", index).Warn("Lineup skipped: overlap budget exhausted")
		}
	}

	g.emit(Event{Type: EventDone, Index: g.cfg.Count})
	g.logger.WithFields(logrus.Fields{
		"requested": g.cfg.Count,
		"built":     len(set.Lineups),
		"skipped":   len(set.Skipped),
	}).Info("Lineup generation complete")
	return set, nil
}

// penalize returns a copy of the annotated pool with exposure and retry
// penalties subtracted from utility. The source annotation is never
// mutated; each iteration reads an immutable snapshot.
func (g *Generator) penalize(players []AnnotatedPlayer, exposure map[string]int, retryPenalty map[string]float64) []AnnotatedPlayer {
	penalized := make([]AnnotatedPlayer, len(players))
	for i, p := range players {
		key := p.Key()
		p.Utility -= g.cfg.PenaltyWeight * float64(exposure[key])
		p.Utility -= retryPenalty[key]
		penalized[i] = p
	}
	return penalized
}

// overlapOffenders collects the players shared with any accepted lineup
// that the candidate overlaps beyond MaxOverlap
func (g *Generator) overlapOffenders(candidate Lineup, accepted []Lineup) []string {
	seen := make(map[string]bool)
	var offenders []string
	for _, prior := range accepted {
		if candidate.Overlap(prior) <= g.cfg.MaxOverlap {
			continue
		}
		for _, key := range candidate.SharedPlayers(prior) {
			if !seen[key] {
				seen[key] = true
				offenders = append(offenders, key)
			}
		}
	}
	return offenders
}

// unpenalizedUtility restores the reported utility to the strategy's raw
// scores; penalties exist only to steer the search
func unpenalizedUtility(l Lineup, baseUtility map[string]float64) float64 {
	total := 0.0
	for _, p := range l.Players() {
		total += baseUtility[p.Key()]
	}
	return total
}
