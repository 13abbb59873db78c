package optimizer

import (
	"fmt"
	"sort"
	"strings"
)

// Position is one of the closed set of roster positions
type Position string

const (
	PositionQB  Position = "QB"
	PositionRB  Position = "RB"
	PositionWR  Position = "WR"
	PositionTE  Position = "TE"
	PositionDST Position = "DST"
)

// BasePositions lists every valid player position
var BasePositions = []Position{PositionQB, PositionRB, PositionWR, PositionTE, PositionDST}

// ParsePosition normalizes and validates a position string
func ParsePosition(s string) (Position, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "QB":
		return PositionQB, nil
	case "RB":
		return PositionRB, nil
	case "WR":
		return PositionWR, nil
	case "TE":
		return PositionTE, nil
	case "DST", "D/ST", "DEF":
		return PositionDST, nil
	}
	return "", fmt.Errorf("unknown position: %q", s)
}

// Player represents one athlete in the candidate pool.
// Identity is name+team+position; team alone does not guarantee uniqueness.
type Player struct {
	Name            string   `json:"name"`
	Team            string   `json:"team"`
	Position        Position `json:"position"`
	Salary          int      `json:"salary"`
	ProjectedPoints float64  `json:"projected_points"`
	VarianceProxy   *float64 `json:"variance_proxy,omitempty"`
}

// Key returns the identity key used for uniqueness and exposure tracking
func (p Player) Key() string {
	return p.Name + "|" + p.Team + "|" + string(p.Position)
}

// HasVariance reports whether a variance proxy was supplied for this player
func (p Player) HasVariance() bool {
	return p.VarianceProxy != nil
}

// Variance returns the variance proxy, or zero when absent
func (p Player) Variance() float64 {
	if p.VarianceProxy == nil {
		return 0
	}
	return *p.VarianceProxy
}

// Validate checks the fields a player must carry to enter optimization
func (p Player) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("player name is required")
	}
	if _, err := ParsePosition(string(p.Position)); err != nil {
		return fmt.Errorf("player %s: %w", p.Name, err)
	}
	if p.Salary < 0 {
		return fmt.Errorf("player %s: salary must be non-negative, got %d", p.Name, p.Salary)
	}
	if p.VarianceProxy != nil && *p.VarianceProxy < 0 {
		return fmt.Errorf("player %s: variance proxy must be non-negative, got %f", p.Name, *p.VarianceProxy)
	}
	return nil
}

// AnnotatedPlayer is a player carrying the per-strategy utility the
// optimizer maximizes
type AnnotatedPlayer struct {
	Player
	Utility float64 `json:"utility"`
}

// LineupSlot is one filled slot in a lineup
type LineupSlot struct {
	Slot   string `json:"slot"`
	Player Player `json:"player"`
}

// Lineup assigns exactly one player to each slot of a roster schema.
// Lineups are constructed atomically by the optimizer and must be treated
// as read-only once returned.
type Lineup struct {
	Slots          []LineupSlot `json:"slots"`
	TotalSalary    int          `json:"total_salary"`
	TotalProjected float64      `json:"total_projected"`
	TotalUtility   float64      `json:"total_utility"`
}

// NewLineup builds a lineup from slot assignments, deriving salary and
// projection totals. Utility is attached by the optimizer.
func NewLineup(slots []LineupSlot) Lineup {
	l := Lineup{Slots: slots}
	for _, s := range slots {
		l.TotalSalary += s.Player.Salary
		l.TotalProjected += s.Player.ProjectedPoints
	}
	return l
}

// Players returns the assigned players in slot order
func (l Lineup) Players() []Player {
	players := make([]Player, 0, len(l.Slots))
	for _, s := range l.Slots {
		players = append(players, s.Player)
	}
	return players
}

// HasPlayer reports whether the lineup contains the given identity key
func (l Lineup) HasPlayer(key string) bool {
	for _, s := range l.Slots {
		if s.Player.Key() == key {
			return true
		}
	}
	return false
}

// Overlap counts players shared between two lineups
func (l Lineup) Overlap(other Lineup) int {
	keys := make(map[string]bool, len(l.Slots))
	for _, s := range l.Slots {
		keys[s.Player.Key()] = true
	}
	shared := 0
	for _, s := range other.Slots {
		if keys[s.Player.Key()] {
			shared++
		}
	}
	return shared
}

// SharedPlayers returns the identity keys present in both lineups
func (l Lineup) SharedPlayers(other Lineup) []string {
	keys := make(map[string]bool, len(l.Slots))
	for _, s := range l.Slots {
		keys[s.Player.Key()] = true
	}
	var shared []string
	for _, s := range other.Slots {
		if keys[s.Player.Key()] {
			shared = append(shared, s.Player.Key())
		}
	}
	sort.Strings(shared)
	return shared
}

// SkipRecord reports one lineup index that could not be produced in a batch
type SkipRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// LineupSet is the ordered result of one generation run
type LineupSet struct {
	Lineups  []Lineup       `json:"lineups"`
	Exposure map[string]int `json:"exposure"`
	Skipped  []SkipRecord   `json:"skipped,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// SkippedCount returns how many requested lineups were skipped
func (s *LineupSet) SkippedCount() int {
	return len(s.Skipped)
}

// Strategy selects how player utility is computed
type Strategy string

const (
	StrategyValue  Strategy = "value"
	StrategyUpside Strategy = "upside"
	StrategySafe   Strategy = "safe"
	StrategyRandom Strategy = "random"
)

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyValue:
		return StrategyValue, nil
	case StrategyUpside:
		return StrategyUpside, nil
	case StrategySafe:
		return StrategySafe, nil
	case StrategyRandom:
		return StrategyRandom, nil
	}
	return "", fmt.Errorf("unknown strategy: %q", s)
}

// DefaultKWeight is the variance weight applied by the upside and safe
// strategies when the caller does not supply one
const DefaultKWeight = 1.0

// StrategyConfig carries the strategy selection for one run.
// KWeight applies to upside/safe; Seed applies to random.
type StrategyConfig struct {
	Strategy Strategy `json:"strategy"`
	KWeight  float64  `json:"k_weight,omitempty"`
	Seed     int64    `json:"seed,omitempty"`
}

func (c StrategyConfig) kWeight() float64 {
	if c.KWeight > 0 {
		return c.KWeight
	}
	return DefaultKWeight
}
