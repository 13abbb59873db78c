package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/jstittsworth/lineup-engine/internal/optimizer"
)

// SavedLineup persists one lineup out of a run's result set. PlayerKeys
// is denormalized so exposure queries never unpack the slot JSON.
type SavedLineup struct {
	ID             string         `json:"id" gorm:"primaryKey;size:100"`
	RunID          uuid.UUID      `json:"run_id" gorm:"type:uuid;index:idx_run_lineups;not null"`
	Position       int            `json:"position" gorm:"not null"` // 1-based index within the set
	TotalSalary    int            `json:"total_salary" gorm:"not null"`
	TotalProjected float64        `json:"total_projected"`
	TotalUtility   float64        `json:"total_utility"`
	PlayerKeys     pq.StringArray `json:"player_keys" gorm:"type:text[];not null"`
	Slots          datatypes.JSON `json:"slots" gorm:"type:jsonb;not null"` // []optimizer.LineupSlot
	CreatedAt      time.Time      `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName returns the table name for SavedLineup
func (SavedLineup) TableName() string {
	return "saved_lineups"
}

// NewSavedLineup converts one lineup into its persisted form
func NewSavedLineup(runID uuid.UUID, position int, lineup optimizer.Lineup) (*SavedLineup, error) {
	slots, err := json.Marshal(lineup.Slots)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(lineup.Slots))
	for _, p := range lineup.Players() {
		keys = append(keys, p.Key())
	}

	return &SavedLineup{
		ID:             fmt.Sprintf("lineup_%d_%s", position, uuid.NewString()[:8]),
		RunID:          runID,
		Position:       position,
		TotalSalary:    lineup.TotalSalary,
		TotalProjected: lineup.TotalProjected,
		TotalUtility:   lineup.TotalUtility,
		PlayerKeys:     pq.StringArray(keys),
		Slots:          datatypes.JSON(slots),
	}, nil
}

// Decode rebuilds the engine lineup from the stored slots
func (sl *SavedLineup) Decode() (optimizer.Lineup, error) {
	var slots []optimizer.LineupSlot
	if err := json.Unmarshal(sl.Slots, &slots); err != nil {
		return optimizer.Lineup{}, err
	}
	lineup := optimizer.NewLineup(slots)
	lineup.TotalUtility = sl.TotalUtility
	return lineup, nil
}

// SavedLineupsFromSet converts every lineup in a set for persistence
func SavedLineupsFromSet(runID uuid.UUID, set *optimizer.LineupSet) ([]SavedLineup, error) {
	rows := make([]SavedLineup, 0, len(set.Lineups))
	for i, lineup := range set.Lineups {
		row, err := NewSavedLineup(runID, i+1, lineup)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}
