package optimizer

import "fmt"

// floatPtr returns a pointer for optional variance fields in fixtures
func floatPtr(v float64) *float64 {
	return &v
}

// buildPool generates a deterministic NFL pool with the given position
// counts. Salaries and projections rise with the player index so value
// rankings are predictable in assertions.
func buildPool(qb, rb, wr, te, dst int) []Player {
	var players []Player
	add := func(prefix string, pos Position, count, baseSalary int, basePoints float64) {
		for i := 1; i <= count; i++ {
			players = append(players, Player{
				Name:            fmt.Sprintf("%s %02d", prefix, i),
				Team:            fmt.Sprintf("T%d", (i%8)+1),
				Position:        pos,
				Salary:          baseSalary + i*250,
				ProjectedPoints: basePoints + float64(i)*0.8,
			})
		}
	}
	add("Quarterback", PositionQB, qb, 5200, 14.0)
	add("Runningback", PositionRB, rb, 4000, 11.0)
	add("Receiver", PositionWR, wr, 3400, 9.0)
	add("Tightend", PositionTE, te, 2800, 7.0)
	add("Defense", PositionDST, dst, 2000, 5.0)
	return players
}

// withVariance copies a pool attaching a variance proxy derived from the
// projection, for upside/safe strategy tests
func withVariance(players []Player) []Player {
	out := make([]Player, len(players))
	for i, p := range players {
		v := p.ProjectedPoints * 0.25
		p.VarianceProxy = &v
		out[i] = p
	}
	return out
}
