package optimizer

import (
	"fmt"
	"sort"
)

// RosterSlot declares one named slot group in a roster schema
type RosterSlot struct {
	Name     string     `json:"name"`
	Count    int        `json:"count"`
	Eligible []Position `json:"eligible"`
}

// IsFlex reports whether the slot accepts more than one base position
func (s RosterSlot) IsFlex() bool {
	return len(s.Eligible) > 1
}

// RosterSchema declares the shape of a valid lineup: ordered slot groups
// and the salary cap
type RosterSchema struct {
	Slots     []RosterSlot `json:"slots"`
	SalaryCap int          `json:"salary_cap"`
}

// DraftKingsNFL returns the classic DraftKings NFL roster:
// QB, 2 RB, 3 WR, TE, FLEX (RB/WR/TE), DST under a $50,000 cap.
func DraftKingsNFL() RosterSchema {
	return RosterSchema{
		Slots: []RosterSlot{
			{Name: "QB", Count: 1, Eligible: []Position{PositionQB}},
			{Name: "RB", Count: 2, Eligible: []Position{PositionRB}},
			{Name: "WR", Count: 3, Eligible: []Position{PositionWR}},
			{Name: "TE", Count: 1, Eligible: []Position{PositionTE}},
			{Name: "FLEX", Count: 1, Eligible: []Position{PositionRB, PositionWR, PositionTE}},
			{Name: "DST", Count: 1, Eligible: []Position{PositionDST}},
		},
		SalaryCap: 50000,
	}
}

// RosterSize returns the total number of players a lineup must carry
func (s RosterSchema) RosterSize() int {
	size := 0
	for _, slot := range s.Slots {
		size += slot.Count
	}
	return size
}

// Validate checks the schema invariants before any optimization uses it
func (s RosterSchema) Validate() error {
	if s.SalaryCap <= 0 {
		return fmt.Errorf("salary cap must be positive, got %d", s.SalaryCap)
	}
	if len(s.Slots) == 0 {
		return fmt.Errorf("schema declares no slots")
	}
	seen := make(map[string]bool, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.Name == "" {
			return fmt.Errorf("slot name is required")
		}
		if seen[slot.Name] {
			return fmt.Errorf("duplicate slot name: %s", slot.Name)
		}
		seen[slot.Name] = true
		if slot.Count < 1 {
			return fmt.Errorf("slot %s: count must be at least 1, got %d", slot.Name, slot.Count)
		}
		if len(slot.Eligible) == 0 {
			return fmt.Errorf("slot %s: no eligible positions", slot.Name)
		}
		elig := make(map[Position]bool, len(slot.Eligible))
		for _, pos := range slot.Eligible {
			if _, err := ParsePosition(string(pos)); err != nil {
				return fmt.Errorf("slot %s: %w", slot.Name, err)
			}
			if elig[pos] {
				return fmt.Errorf("slot %s: duplicate eligible position %s", slot.Name, pos)
			}
			elig[pos] = true
		}
	}
	return nil
}

// PositionSlot is one concrete slot instance a lineup must fill,
// expanded from the schema's slot groups
type PositionSlot struct {
	SlotName         string
	GroupName        string
	AllowedPositions []Position
	Priority         int
}

// IsFlex reports whether the slot instance accepts multiple base positions
func (ps PositionSlot) IsFlex() bool {
	return len(ps.AllowedPositions) > 1
}

// CanFill reports whether a player's position satisfies this slot
func (ps PositionSlot) CanFill(p Player) bool {
	for _, pos := range ps.AllowedPositions {
		if p.Position == pos {
			return true
		}
	}
	return false
}

// ExpandSlots flattens the schema into per-instance slots in declared
// order: a group with count 2 named RB becomes RB1 and RB2.
func (s RosterSchema) ExpandSlots() []PositionSlot {
	expanded := make([]PositionSlot, 0, s.RosterSize())
	priority := 1
	for _, slot := range s.Slots {
		for i := 0; i < slot.Count; i++ {
			name := slot.Name
			if slot.Count > 1 {
				name = fmt.Sprintf("%s%d", slot.Name, i+1)
			}
			expanded = append(expanded, PositionSlot{
				SlotName:         name,
				GroupName:        slot.Name,
				AllowedPositions: slot.Eligible,
				Priority:         priority,
			})
			priority++
		}
	}
	return expanded
}

// fillOrder returns the expanded slots reordered for construction:
// single-position slots first, multi-position slots after, so FLEX
// draws from whatever the base slots left behind.
func (s RosterSchema) fillOrder() []PositionSlot {
	slots := s.ExpandSlots()
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].IsFlex() != slots[j].IsFlex() {
			return !slots[i].IsFlex()
		}
		return slots[i].Priority < slots[j].Priority
	})
	return slots
}
