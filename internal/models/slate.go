package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/jstittsworth/lineup-engine/internal/optimizer"
)

// Slate represents one imported salary file
type Slate struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Name         string         `json:"name" gorm:"size:200;not null"`
	Source       string         `json:"source" gorm:"size:50;default:'draftkings'"`
	SalaryCap    int            `json:"salary_cap" gorm:"not null"`
	PlayerCount  int            `json:"player_count"`
	ImportErrors pq.StringArray `json:"import_errors,omitempty" gorm:"type:text[]"`
	CreatedAt    time.Time      `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
	Players      []SlatePlayer  `json:"players,omitempty" gorm:"foreignKey:SlateID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for Slate
func (Slate) TableName() string {
	return "slates"
}

// SlatePlayer is one pool entry persisted with its slate
type SlatePlayer struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SlateID         uint      `json:"slate_id" gorm:"index:idx_slate_players;not null"`
	Name            string    `json:"name" gorm:"size:100;not null"`
	Team            string    `json:"team" gorm:"size:10"`
	Position        string    `json:"position" gorm:"size:10;not null"`
	Salary          int       `json:"salary" gorm:"not null"`
	ProjectedPoints float64   `json:"projected_points"`
	VarianceProxy   *float64  `json:"variance_proxy,omitempty"`
	CreatedAt       time.Time `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName returns the table name for SlatePlayer
func (SlatePlayer) TableName() string {
	return "slate_players"
}

// ToPlayer converts a persisted row back into the engine's pool format
func (sp SlatePlayer) ToPlayer() optimizer.Player {
	return optimizer.Player{
		Name:            sp.Name,
		Team:            sp.Team,
		Position:        optimizer.Position(sp.Position),
		Salary:          sp.Salary,
		ProjectedPoints: sp.ProjectedPoints,
		VarianceProxy:   sp.VarianceProxy,
	}
}

// SlatePlayersFromPool converts an imported pool into rows for one slate
func SlatePlayersFromPool(slateID uint, players []optimizer.Player) []SlatePlayer {
	rows := make([]SlatePlayer, len(players))
	for i, p := range players {
		rows[i] = SlatePlayer{
			SlateID:         slateID,
			Name:            p.Name,
			Team:            p.Team,
			Position:        string(p.Position),
			Salary:          p.Salary,
			ProjectedPoints: p.ProjectedPoints,
			VarianceProxy:   p.VarianceProxy,
		}
	}
	return rows
}

// PoolFromSlatePlayers converts persisted rows back into an engine pool
func PoolFromSlatePlayers(rows []SlatePlayer) []optimizer.Player {
	players := make([]optimizer.Player, len(rows))
	for i, row := range rows {
		players[i] = row.ToPlayer()
	}
	return players
}
