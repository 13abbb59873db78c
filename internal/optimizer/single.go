package optimizer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// OptimizeConfig tunes the single-lineup solver
type OptimizeConfig struct {
	// ExactThreshold is the largest per-position candidate group the
	// exact solver will take on; bigger pools go straight to the
	// heuristic.
	ExactThreshold int
	// MaxNodes bounds the exact search; exceeding it switches to the
	// heuristic rather than failing.
	MaxNodes int64
	// TimeBudget bounds the exact search wall-clock the same way.
	TimeBudget time.Duration
	// SwapBudget caps improving swaps in the heuristic's local search.
	SwapBudget int
}

// DefaultOptimizeConfig returns the solver defaults
func DefaultOptimizeConfig() OptimizeConfig {
	return OptimizeConfig{
		ExactThreshold: 60,
		MaxNodes:       2000000,
		TimeBudget:     30 * time.Second,
		SwapBudget:     200,
	}
}

func (c OptimizeConfig) withDefaults() OptimizeConfig {
	d := DefaultOptimizeConfig()
	if c.ExactThreshold <= 0 {
		c.ExactThreshold = d.ExactThreshold
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = d.TimeBudget
	}
	if c.SwapBudget <= 0 {
		c.SwapBudget = d.SwapBudget
	}
	return c
}

// Optimizer builds one feasible lineup maximizing total utility
type Optimizer struct {
	cfg    OptimizeConfig
	logger *logrus.Logger
}

// NewOptimizer creates an optimizer; zero config fields take defaults
func NewOptimizer(cfg OptimizeConfig, logger *logrus.Logger) *Optimizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Optimizer{cfg: cfg.withDefaults(), logger: logger}
}

// Optimize annotates the pool with the strategy's utility and solves for
// the best feasible lineup. The returned warning is non-nil when the
// strategy ran in degraded mode; it accompanies a successful result.
func (o *Optimizer) Optimize(players []Player, schema RosterSchema, strategy StrategyConfig) (Lineup, *DegradedStrategyWarning, error) {
	for _, p := range players {
		if err := p.Validate(); err != nil {
			return Lineup{}, nil, fmt.Errorf("invalid player pool: %w", err)
		}
	}
	annotation, err := Annotate(players, strategy)
	if err != nil {
		return Lineup{}, nil, err
	}
	lineup, err := o.OptimizeAnnotated(annotation.Players, schema)
	if err != nil {
		return Lineup{}, annotation.Degraded, err
	}
	return lineup, annotation.Degraded, nil
}

// OptimizeAnnotated solves over players that already carry utilities.
// The multi-lineup generator uses this entry point with penalized
// utilities.
func (o *Optimizer) OptimizeAnnotated(players []AnnotatedPlayer, schema RosterSchema) (Lineup, error) {
	if err := schema.Validate(); err != nil {
		return Lineup{}, err
	}
	ctx, err := o.newSearch(players, schema)
	if err != nil {
		return Lineup{}, err
	}

	exact := ctx.largestGroup <= o.cfg.ExactThreshold
	var chosen []AnnotatedPlayer
	if exact {
		chosen, err = o.exactSearch(ctx)
		if err != nil {
			return Lineup{}, err
		}
		if chosen == nil && ctx.aborted {
			// Budget exceeded is a policy switch, not a failure
			o.logger.WithFields(logrus.Fields{
				"nodes":   ctx.nodes,
				"largest": ctx.largestGroup,
			}).Debug("Exact search exceeded budget, falling back to heuristic")
			exact = false
		}
	}
	if !exact {
		chosen, err = o.heuristicSearch(ctx)
		if err != nil {
			return Lineup{}, err
		}
	}

	lineup := ctx.buildLineup(chosen)
	if violations := Explain(lineup, schema); len(violations) > 0 {
		o.logger.WithField("violations", violations).Error("Optimizer produced an invalid lineup")
		return Lineup{}, fmt.Errorf("internal: constructed lineup failed validation: %s", strings.Join(violations, "; "))
	}

	o.logger.WithFields(logrus.Fields{
		"exact":        exact,
		"total_salary": lineup.TotalSalary,
		"utility":      lineup.TotalUtility,
	}).Debug("Lineup optimization complete")
	return lineup, nil
}

// searchContext holds the per-call state both solver tiers share
type searchContext struct {
	schema       RosterSchema
	slots        []PositionSlot    // fill order: concrete slots first
	groups       [][]AnnotatedPlayer // per-slot candidates, rank order
	minRemain    []int             // suffix sums of per-slot min salary
	maxRemain    []float64         // suffix sums of per-slot max utility
	largestGroup int
	deadline     time.Time
	nodes        int64
	maxNodes     int64
	aborted      bool
}

func (o *Optimizer) newSearch(players []AnnotatedPlayer, schema RosterSchema) (*searchContext, error) {
	// Distinct eligible players per slot group, for sufficiency checks
	eligibleCount := func(slot RosterSlot) int {
		seen := make(map[string]bool)
		for _, p := range players {
			for _, pos := range slot.Eligible {
				if p.Position == pos {
					seen[p.Key()] = true
					break
				}
			}
		}
		return len(seen)
	}
	for _, slot := range schema.Slots {
		have := eligibleCount(slot)
		need := slot.Count
		if slot.IsFlex() {
			// Flex candidates must not double-count against the base
			// slots they also satisfy
			for _, base := range schema.Slots {
				if base.Name != slot.Name && !base.IsFlex() && containsPosition(slot.Eligible, base.Eligible[0]) {
					have -= base.Count
				}
			}
		}
		if have < need {
			if have < 0 {
				have = 0
			}
			return nil, &InsufficientCandidatesError{Slot: slot.Name, Need: need, Have: have}
		}
	}

	// Candidate groups shared across instances of the same slot group,
	// ranked by utility, then projection, then name
	groupCache := make(map[string][]AnnotatedPlayer, len(schema.Slots))
	candidatesFor := func(ps PositionSlot) []AnnotatedPlayer {
		if cached, ok := groupCache[ps.GroupName]; ok {
			return cached
		}
		var group []AnnotatedPlayer
		for _, p := range players {
			if ps.CanFill(p.Player) {
				group = append(group, p)
			}
		}
		sort.SliceStable(group, func(i, j int) bool {
			return rankLess(group[i], group[j])
		})
		groupCache[ps.GroupName] = group
		return group
	}

	ctx := &searchContext{
		schema:   schema,
		slots:    schema.fillOrder(),
		maxNodes: o.cfg.MaxNodes,
		deadline: time.Now().Add(o.cfg.TimeBudget),
	}
	ctx.groups = make([][]AnnotatedPlayer, len(ctx.slots))
	for i, ps := range ctx.slots {
		group := candidatesFor(ps)
		ctx.groups[i] = group
		if len(group) > ctx.largestGroup {
			ctx.largestGroup = len(group)
		}
	}

	// Suffix bounds for pruning: min salary still to spend and max
	// utility still attainable from each slot onward
	n := len(ctx.slots)
	ctx.minRemain = make([]int, n+1)
	ctx.maxRemain = make([]float64, n+1)
	for i := n - 1; i >= 0; i-- {
		minSalary := ctx.groups[i][0].Salary
		maxUtility := ctx.groups[i][0].Utility
		for _, p := range ctx.groups[i][1:] {
			if p.Salary < minSalary {
				minSalary = p.Salary
			}
			if p.Utility > maxUtility {
				maxUtility = p.Utility
			}
		}
		ctx.minRemain[i] = ctx.minRemain[i+1] + minSalary
		ctx.maxRemain[i] = ctx.maxRemain[i+1] + maxUtility
	}
	return ctx, nil
}

// rankLess is the deterministic candidate ordering: utility descending,
// then projected points descending, then name, then identity key
func rankLess(a, b AnnotatedPlayer) bool {
	if a.Utility != b.Utility {
		return a.Utility > b.Utility
	}
	if a.ProjectedPoints != b.ProjectedPoints {
		return a.ProjectedPoints > b.ProjectedPoints
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Key() < b.Key()
}

func containsPosition(set []Position, pos Position) bool {
	for _, p := range set {
		if p == pos {
			return true
		}
	}
	return false
}

// noFeasible builds the typed failure, naming the cheapest-roster bound
// when that alone already breaks the cap
func (ctx *searchContext) noFeasible() error {
	minSalary := 0
	if ctx.minRemain[0] > ctx.schema.SalaryCap {
		minSalary = ctx.minRemain[0]
	}
	return &NoFeasibleLineupError{SalaryCap: ctx.schema.SalaryCap, MinSalary: minSalary}
}

// buildLineup assembles the final lineup in schema slot order and sums
// the utilities the search maximized
func (ctx *searchContext) buildLineup(chosen []AnnotatedPlayer) Lineup {
	ordered := make([]LineupSlot, len(ctx.slots))
	utility := 0.0
	for i, ps := range ctx.slots {
		ordered[ps.Priority-1] = LineupSlot{Slot: ps.SlotName, Player: chosen[i].Player}
		utility += chosen[i].Utility
	}
	lineup := NewLineup(ordered)
	lineup.TotalUtility = utility
	return lineup
}

// exactSearch runs depth-first branch and bound over the slot instances.
// It returns the optimal selection under the deterministic tie-break, nil
// with ctx.aborted set when the node or time budget ran out, or the typed
// infeasibility error.
func (o *Optimizer) exactSearch(ctx *searchContext) ([]AnnotatedPlayer, error) {
	n := len(ctx.slots)
	var (
		best        []AnnotatedPlayer
		bestUtility float64
		bestPoints  float64
		bestNames   string
		current     = make([]AnnotatedPlayer, n)
		chosenIdx   = make([]int, n)
		used        = make(map[string]bool, n)
	)

	var walk func(i int, salary int, utility, points float64) bool
	walk = func(i int, salary int, utility, points float64) bool {
		if ctx.nodes >= ctx.maxNodes {
			ctx.aborted = true
			return false
		}
		if ctx.nodes%1024 == 0 && time.Now().After(ctx.deadline) {
			ctx.aborted = true
			return false
		}
		if i == n {
			names := solutionKey(current)
			if best == nil || betterSolution(utility, points, names, bestUtility, bestPoints, bestNames) {
				best = append(best[:0], current...)
				bestUtility, bestPoints, bestNames = utility, points, names
			}
			return true
		}

		// Instances of one slot group are interchangeable; forcing
		// ascending candidate indices across them prunes permutations
		start := 0
		if i > 0 && ctx.slots[i].GroupName == ctx.slots[i-1].GroupName {
			start = chosenIdx[i-1] + 1
		}
		group := ctx.groups[i]
		for idx := start; idx < len(group); idx++ {
			cand := group[idx]
			ctx.nodes++
			if used[cand.Key()] {
				continue
			}
			if salary+cand.Salary+ctx.minRemain[i+1] > ctx.schema.SalaryCap {
				continue
			}
			// Candidates are utility-sorted, so once the optimistic
			// bound drops below the incumbent nothing later can win
			if best != nil && utility+cand.Utility+ctx.maxRemain[i+1] < bestUtility {
				break
			}
			used[cand.Key()] = true
			current[i] = cand
			chosenIdx[i] = idx
			ok := walk(i+1, salary+cand.Salary, utility+cand.Utility, points+cand.ProjectedPoints)
			delete(used, cand.Key())
			if !ok && ctx.aborted {
				return false
			}
		}
		return true
	}

	walk(0, 0, 0, 0)
	if ctx.aborted {
		return nil, nil
	}
	if best == nil {
		return nil, ctx.noFeasible()
	}
	return best, nil
}

// betterSolution applies the tie-break: higher utility, then higher
// projected points, then the alphabetically earlier roster
func betterSolution(utility, points float64, names string, bestUtility, bestPoints float64, bestNames string) bool {
	if utility != bestUtility {
		return utility > bestUtility
	}
	if points != bestPoints {
		return points > bestPoints
	}
	return names < bestNames
}

// solutionKey orders complete rosters for the final tie-break: sorted
// names first, identity keys as the ultimate separator
func solutionKey(players []AnnotatedPlayer) string {
	names := make([]string, 0, len(players))
	keys := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name)
		keys = append(keys, p.Key())
	}
	sort.Strings(names)
	sort.Strings(keys)
	return strings.Join(names, "|") + "\x00" + strings.Join(keys, "|")
}

// heuristicSearch fills slots greedily by utility with budget-aware
// selection and backtracking, then runs improving same-slot swaps until
// no swap helps or the swap budget is spent.
func (o *Optimizer) heuristicSearch(ctx *searchContext) ([]AnnotatedPlayer, error) {
	const maxSteps = 200000
	n := len(ctx.slots)
	chosen := make([]AnnotatedPlayer, n)
	chosenIdx := make([]int, n)
	next := make([]int, n)
	used := make(map[string]bool, n)
	salary := 0
	steps := 0

	// Greedy fill with backtracking on dead ends
	i := 0
	for i < n {
		if i > 0 && ctx.slots[i].GroupName == ctx.slots[i-1].GroupName && next[i] <= chosenIdx[i-1] {
			next[i] = chosenIdx[i-1] + 1
		}
		group := ctx.groups[i]
		placed := false
		for idx := next[i]; idx < len(group); idx++ {
			steps++
			if steps > maxSteps {
				return nil, ctx.noFeasible()
			}
			cand := group[idx]
			if used[cand.Key()] {
				continue
			}
			if salary+cand.Salary+ctx.minRemain[i+1] > ctx.schema.SalaryCap {
				continue
			}
			chosen[i] = cand
			chosenIdx[i] = idx
			next[i] = idx + 1
			used[cand.Key()] = true
			salary += cand.Salary
			placed = true
			break
		}
		if placed {
			i++
			continue
		}
		// Dead end: rewind to the previous slot and advance it
		next[i] = 0
		i--
		if i < 0 {
			return nil, ctx.noFeasible()
		}
		used[chosen[i].Key()] = false
		salary -= chosen[i].Salary
	}

	// Local search: swap in any unused same-slot candidate that improves
	// total utility and stays under the cap
	swaps := 0
	improved := true
	for improved && swaps < o.cfg.SwapBudget {
		improved = false
		for i := 0; i < n && swaps < o.cfg.SwapBudget; i++ {
			group := ctx.groups[i]
			for _, cand := range group {
				if cand.Utility <= chosen[i].Utility {
					break // rank order: nothing further improves
				}
				if used[cand.Key()] {
					continue
				}
				if salary-chosen[i].Salary+cand.Salary > ctx.schema.SalaryCap {
					continue
				}
				used[chosen[i].Key()] = false
				salary += cand.Salary - chosen[i].Salary
				chosen[i] = cand
				used[cand.Key()] = true
				swaps++
				improved = true
				break
			}
		}
	}

	o.logger.WithFields(logrus.Fields{
		"steps": steps,
		"swaps": swaps,
	}).Debug("Heuristic search complete")
	return chosen, nil
}
