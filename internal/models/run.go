package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/jstittsworth/lineup-engine/internal/optimizer"
)

// RunStatus tracks an optimization run through its lifecycle
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// OptimizationRun records one generation request and its outcome
type OptimizationRun struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	SlateID        *uint          `json:"slate_id,omitempty" gorm:"index:idx_slate_runs"`
	Status         RunStatus      `json:"status" gorm:"size:20;index:idx_run_status;not null;default:'pending'"`
	Strategy       string         `json:"strategy" gorm:"size:20;not null"`
	Seed           int64          `json:"seed"`
	KWeight        float64        `json:"k_weight"`
	RequestedCount int            `json:"requested_count" gorm:"not null"`
	MaxOverlap     int            `json:"max_overlap"`
	Request        datatypes.JSON `json:"request" gorm:"type:jsonb"`          // original request payload
	Result         datatypes.JSON `json:"result,omitempty" gorm:"type:jsonb"` // optimizer.LineupSet
	Warnings       pq.StringArray `json:"warnings,omitempty" gorm:"type:text[]"`
	Error          string         `json:"error,omitempty" gorm:"type:text"`
	BuiltCount     int            `json:"built_count"`
	SkippedCount   int            `json:"skipped_count"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index:idx_run_created;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName returns the table name for OptimizationRun
func (OptimizationRun) TableName() string {
	return "optimization_runs"
}

// SetResult stores a completed lineup set on the run
func (r *OptimizationRun) SetResult(set *optimizer.LineupSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	r.Result = datatypes.JSON(data)
	r.Warnings = pq.StringArray(set.Warnings)
	r.BuiltCount = len(set.Lineups)
	r.SkippedCount = set.SkippedCount()
	r.Status = RunStatusCompleted
	r.CompletedAt = &now
	return nil
}

// DecodeResult unmarshals the stored lineup set, or returns nil when the
// run has no result yet
func (r *OptimizationRun) DecodeResult() (*optimizer.LineupSet, error) {
	if len(r.Result) == 0 {
		return nil, nil
	}
	var set optimizer.LineupSet
	if err := json.Unmarshal(r.Result, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// MarkRunning transitions the run to running and stamps the start time
func (r *OptimizationRun) MarkRunning() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkFailed records a terminal failure
func (r *OptimizationRun) MarkFailed(err error) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.Error = err.Error()
	r.CompletedAt = &now
}

// IsTerminal reports whether the run has finished, successfully or not
func (r *OptimizationRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
