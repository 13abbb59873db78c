package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftKingsNFL(t *testing.T) {
	schema := DraftKingsNFL()

	require.NoError(t, schema.Validate())
	assert.Equal(t, 50000, schema.SalaryCap)
	assert.Equal(t, 9, schema.RosterSize())

	var flex RosterSlot
	for _, slot := range schema.Slots {
		if slot.Name == "FLEX" {
			flex = slot
		}
	}
	require.NotEmpty(t, flex.Name, "schema should declare a FLEX slot")
	assert.True(t, flex.IsFlex())
	assert.ElementsMatch(t, []Position{PositionRB, PositionWR, PositionTE}, flex.Eligible)
}

func TestExpandSlots(t *testing.T) {
	schema := DraftKingsNFL()
	expanded := schema.ExpandSlots()

	require.Len(t, expanded, 9)
	names := make([]string, 0, len(expanded))
	for _, ps := range expanded {
		names = append(names, ps.SlotName)
	}
	assert.Equal(t, []string{"QB", "RB1", "RB2", "WR1", "WR2", "WR3", "TE", "FLEX", "DST"}, names)

	for i, ps := range expanded {
		assert.Equal(t, i+1, ps.Priority, "priorities should follow declaration order")
	}
}

func TestFillOrderPutsFlexLast(t *testing.T) {
	schema := DraftKingsNFL()
	order := schema.fillOrder()

	require.Len(t, order, 9)
	assert.Equal(t, "FLEX", order[len(order)-1].SlotName,
		"multi-position slots fill after every concrete slot")
	for _, ps := range order[:len(order)-1] {
		assert.False(t, ps.IsFlex())
	}
}

func TestCanFill(t *testing.T) {
	schema := DraftKingsNFL()
	var flexSlot, qbSlot PositionSlot
	for _, ps := range schema.ExpandSlots() {
		switch ps.SlotName {
		case "FLEX":
			flexSlot = ps
		case "QB":
			qbSlot = ps
		}
	}

	rb := Player{Name: "Back", Team: "DAL", Position: PositionRB}
	qb := Player{Name: "Passer", Team: "DAL", Position: PositionQB}

	assert.True(t, flexSlot.CanFill(rb))
	assert.False(t, flexSlot.CanFill(qb), "FLEX never takes a quarterback")
	assert.True(t, qbSlot.CanFill(qb))
	assert.False(t, qbSlot.CanFill(rb))
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RosterSchema)
		wantErr string
	}{
		{
			name:    "zero salary cap",
			mutate:  func(s *RosterSchema) { s.SalaryCap = 0 },
			wantErr: "salary cap",
		},
		{
			name:    "no slots",
			mutate:  func(s *RosterSchema) { s.Slots = nil },
			wantErr: "no slots",
		},
		{
			name: "duplicate slot name",
			mutate: func(s *RosterSchema) {
				s.Slots = append(s.Slots, RosterSlot{Name: "QB", Count: 1, Eligible: []Position{PositionQB}})
			},
			wantErr: "duplicate slot",
		},
		{
			name:    "zero count",
			mutate:  func(s *RosterSchema) { s.Slots[0].Count = 0 },
			wantErr: "count",
		},
		{
			name:    "no eligible positions",
			mutate:  func(s *RosterSchema) { s.Slots[0].Eligible = nil },
			wantErr: "eligible",
		},
		{
			name:    "invalid position",
			mutate:  func(s *RosterSchema) { s.Slots[0].Eligible = []Position{"KICKER"} },
			wantErr: "unknown position",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := DraftKingsNFL()
			tt.mutate(&schema)
			err := schema.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
