package optimizer

import "fmt"

// Explain validates a lineup against a schema and returns every violation
// in check order: slot coverage, position eligibility, duplicate players,
// salary cap. An empty result means the lineup is feasible.
//
// This is the single source of truth for lineup validity. The optimizer
// never returns a lineup this function rejects, and tests hold it as
// ground truth regardless of how a lineup was built.
func Explain(l Lineup, schema RosterSchema) []string {
	var violations []string

	// Check 1: every schema slot filled exactly once, nothing extra
	expanded := schema.ExpandSlots()
	slotIndex := make(map[string]PositionSlot, len(expanded))
	for _, ps := range expanded {
		slotIndex[ps.SlotName] = ps
	}
	filled := make(map[string]LineupSlot, len(l.Slots))
	for _, ls := range l.Slots {
		if _, dup := filled[ls.Slot]; dup {
			violations = append(violations, fmt.Sprintf("slot %s filled more than once", ls.Slot))
			continue
		}
		filled[ls.Slot] = ls
	}
	for _, ps := range expanded {
		ls, ok := filled[ps.SlotName]
		if !ok || ls.Player.Name == "" {
			violations = append(violations, fmt.Sprintf("slot %s not filled", ps.SlotName))
		}
	}
	for _, ls := range l.Slots {
		if _, ok := slotIndex[ls.Slot]; !ok {
			violations = append(violations, fmt.Sprintf("slot %s not declared by schema", ls.Slot))
		}
	}

	// Check 2: each player's position is eligible for its slot
	for _, ps := range expanded {
		ls, ok := filled[ps.SlotName]
		if !ok || ls.Player.Name == "" {
			continue
		}
		if !ps.CanFill(ls.Player) {
			violations = append(violations, fmt.Sprintf(
				"slot %s: position %s not eligible", ps.SlotName, ls.Player.Position))
		}
	}

	// Check 3: no player identity appears twice
	seen := make(map[string]string, len(l.Slots))
	for _, ps := range expanded {
		ls, ok := filled[ps.SlotName]
		if !ok || ls.Player.Name == "" {
			continue
		}
		key := ls.Player.Key()
		if firstSlot, dup := seen[key]; dup {
			violations = append(violations, fmt.Sprintf(
				"player %s appears in slots %s and %s", ls.Player.Name, firstSlot, ps.SlotName))
			continue
		}
		seen[key] = ps.SlotName
	}

	// Check 4: total salary within the cap, recomputed from assignments
	total := 0
	for _, ls := range l.Slots {
		total += ls.Player.Salary
	}
	if total > schema.SalaryCap {
		violations = append(violations, fmt.Sprintf(
			"total salary %d exceeds cap %d", total, schema.SalaryCap))
	}

	return violations
}

// IsFeasible reports whether a lineup passes every schema check
func IsFeasible(l Lineup, schema RosterSchema) bool {
	return len(Explain(l, schema)) == 0
}
