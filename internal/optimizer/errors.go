package optimizer

import "fmt"

// InsufficientCandidatesError reports a slot with fewer eligible players
// than it requires. Generation of that lineup aborts; callers decide
// whether to continue with fewer lineups.
type InsufficientCandidatesError struct {
	Slot string
	Need int
	Have int
}

func (e *InsufficientCandidatesError) Error() string {
	return fmt.Sprintf("insufficient candidates for slot %s: need %d, have %d", e.Slot, e.Need, e.Have)
}

// NoFeasibleLineupError reports that no player combination satisfies the
// salary cap and roster constraints
type NoFeasibleLineupError struct {
	SalaryCap int
	MinSalary int
}

func (e *NoFeasibleLineupError) Error() string {
	if e.MinSalary > 0 {
		return fmt.Sprintf("no feasible lineup: cheapest roster costs %d against cap %d", e.MinSalary, e.SalaryCap)
	}
	return fmt.Sprintf("no feasible lineup under salary cap %d", e.SalaryCap)
}

// OverlapBudgetExhaustedError reports a batch index whose overlap
// constraint could not be satisfied within the retry budget. The index is
// skipped and the batch continues.
type OverlapBudgetExhaustedError struct {
	Index      int
	Retries    int
	MaxOverlap int
}

func (e *OverlapBudgetExhaustedError) Error() string {
	return fmt.Sprintf("lineup %d: overlap above %d after %d retries", e.Index, e.MaxOverlap, e.Retries)
}

// DegradedStrategyWarning signals that a strategy requiring variance data
// ran without it and fell back to projection-only utility. It is reported
// alongside results, never as a failure.
type DegradedStrategyWarning struct {
	Strategy Strategy
	Reason   string
}

func (w DegradedStrategyWarning) String() string {
	return fmt.Sprintf("strategy %s degraded to projection-only: %s", w.Strategy, w.Reason)
}
