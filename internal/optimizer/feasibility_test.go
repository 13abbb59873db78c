package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feasibleLineup builds a hand-checked valid DK NFL lineup at $45,000
func feasibleLineup() Lineup {
	return NewLineup([]LineupSlot{
		{Slot: "QB", Player: Player{Name: "Josh Allen", Team: "BUF", Position: PositionQB, Salary: 6700, ProjectedPoints: 22.0}},
		{Slot: "RB1", Player: Player{Name: "Bijan Robinson", Team: "ATL", Position: PositionRB, Salary: 5500, ProjectedPoints: 17.0}},
		{Slot: "RB2", Player: Player{Name: "James Cook", Team: "BUF", Position: PositionRB, Salary: 4800, ProjectedPoints: 14.0}},
		{Slot: "WR1", Player: Player{Name: "Tyreek Hill", Team: "MIA", Position: PositionWR, Salary: 6200, ProjectedPoints: 19.0}},
		{Slot: "WR2", Player: Player{Name: "CeeDee Lamb", Team: "DAL", Position: PositionWR, Salary: 5400, ProjectedPoints: 16.5}},
		{Slot: "WR3", Player: Player{Name: "Nico Collins", Team: "HOU", Position: PositionWR, Salary: 4600, ProjectedPoints: 13.0}},
		{Slot: "TE", Player: Player{Name: "Trey McBride", Team: "ARI", Position: PositionTE, Salary: 3900, ProjectedPoints: 11.0}},
		{Slot: "FLEX", Player: Player{Name: "Jahmyr Gibbs", Team: "DET", Position: PositionRB, Salary: 5100, ProjectedPoints: 15.0}},
		{Slot: "DST", Player: Player{Name: "Ravens", Team: "BAL", Position: PositionDST, Salary: 2800, ProjectedPoints: 7.0}},
	})
}

func TestIsFeasible_ValidLineup(t *testing.T) {
	schema := DraftKingsNFL()
	lineup := feasibleLineup()

	assert.Empty(t, Explain(lineup, schema))
	assert.True(t, IsFeasible(lineup, schema))
	assert.Equal(t, 45000, lineup.TotalSalary)
}

func TestExplain_UnfilledSlot(t *testing.T) {
	schema := DraftKingsNFL()
	lineup := feasibleLineup()
	lineup.Slots = lineup.Slots[:len(lineup.Slots)-1] // drop DST

	violations := Explain(lineup, schema)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], "slot DST not filled")
	assert.False(t, IsFeasible(lineup, schema))
}

func TestExplain_UndeclaredSlot(t *testing.T) {
	schema := DraftKingsNFL()
	lineup := feasibleLineup()
	lineup.Slots = append(lineup.Slots, LineupSlot{
		Slot:   "K",
		Player: Player{Name: "Justin Tucker", Team: "BAL", Position: PositionDST, Salary: 1000},
	})

	violations := Explain(lineup, schema)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], "not declared by schema")
}

func TestExplain_IneligiblePosition(t *testing.T) {
	schema := DraftKingsNFL()
	lineup := feasibleLineup()
	lineup.Slots[0].Player.Position = PositionWR // WR in the QB slot

	violations := Explain(lineup, schema)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "slot QB")
	assert.Contains(t, violations[0], "position WR not eligible")
}

func TestExplain_DuplicatePlayer(t *testing.T) {
	schema := DraftKingsNFL()
	lineup := feasibleLineup()
	lineup.Slots[7].Player = lineup.Slots[1].Player // FLEX repeats RB1

	violations := Explain(lineup, schema)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "Bijan Robinson")
	assert.Contains(t, violations[0], "RB1")
	assert.Contains(t, violations[0], "FLEX")
}

func TestExplain_SalaryCapExceeded(t *testing.T) {
	schema := DraftKingsNFL()
	lineup := feasibleLineup()
	lineup.Slots[0].Player.Salary = 20000 // pushes total to 58300

	violations := Explain(lineup, schema)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "total salary 58300 exceeds cap 50000")
}

func TestExplain_CapBoundaryIsInclusive(t *testing.T) {
	schema := DraftKingsNFL()
	schema.SalaryCap = 45000

	lineup := feasibleLineup()
	assert.True(t, IsFeasible(lineup, schema), "spending exactly the cap is legal")

	schema.SalaryCap = 44999
	assert.False(t, IsFeasible(lineup, schema), "one unit over the cap is not")
}

func TestExplain_ReportsViolationsInCheckOrder(t *testing.T) {
	schema := DraftKingsNFL()
	lineup := feasibleLineup()
	lineup.Slots = lineup.Slots[:8]                 // DST unfilled
	lineup.Slots[0].Player.Position = PositionWR    // QB slot ineligible
	lineup.Slots[7].Player = lineup.Slots[2].Player // duplicate in FLEX
	lineup.Slots[4].Player.Salary = 30000           // over the cap

	violations := Explain(lineup, schema)
	require.GreaterOrEqual(t, len(violations), 4)
	assert.Contains(t, violations[0], "not filled")
	assert.Contains(t, violations[1], "not eligible")
	assert.Contains(t, violations[2], "appears in slots")
	assert.Contains(t, violations[len(violations)-1], "exceeds cap")
}
