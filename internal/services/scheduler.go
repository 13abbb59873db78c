package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/lineup-engine/internal/cache"
	"github.com/jstittsworth/lineup-engine/internal/models"
	"github.com/jstittsworth/lineup-engine/pkg/database"
)

// MaintenanceService runs the scheduled housekeeping jobs: purging aged
// optimization runs and sweeping the result cache
type MaintenanceService struct {
	db            *database.DB
	cache         *cache.ResultCache
	logger        *logrus.Logger
	cron          *cron.Cron
	mu            sync.RWMutex
	jobs          map[string]JobInfo
	isRunning     bool
	retentionDays int
	schedule      string
}

// JobInfo tracks one scheduled job's execution history
type JobInfo struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Schedule   string        `json:"schedule"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	Status     string        `json:"status"`
	RunCount   int           `json:"run_count"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// NewMaintenanceService creates the maintenance scheduler. The cache is
// optional; cache jobs are skipped when it is nil.
func NewMaintenanceService(db *database.DB, resultCache *cache.ResultCache, schedule string, retentionDays int, logger *logrus.Logger) *MaintenanceService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cronLogger := cron.VerbosePrintfLogger(logger)

	return &MaintenanceService{
		db:            db,
		cache:         resultCache,
		logger:        logger,
		cron:          cron.New(cron.WithLogger(cronLogger)),
		jobs:          make(map[string]JobInfo),
		retentionDays: retentionDays,
		schedule:      schedule,
	}
}

// Start schedules the jobs and starts the cron loop
func (ms *MaintenanceService) Start() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.isRunning {
		return nil
	}

	if err := ms.addJob("run_cleanup", ms.schedule, "Aged run cleanup", ms.cleanupAgedRuns); err != nil {
		return fmt.Errorf("failed to schedule run cleanup: %w", err)
	}
	if ms.cache != nil {
		// Weekly cache sweep, Sunday morning after the daily cleanup
		if err := ms.addJob("cache_sweep", "0 4 * * 0", "Result cache sweep", ms.sweepCache); err != nil {
			return fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
	}

	ms.cron.Start()
	ms.isRunning = true

	ms.logger.WithFields(logrus.Fields{
		"component":      "maintenance",
		"retention_days": ms.retentionDays,
		"schedule":       ms.schedule,
	}).Info("Maintenance scheduler started")
	return nil
}

// addJob registers a cron entry wrapped with job bookkeeping
func (ms *MaintenanceService) addJob(id, schedule, name string, jobFunc func() error) error {
	entryID, err := ms.cron.AddFunc(schedule, func() {
		ms.runJob(id, name, jobFunc)
	})
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", id, err)
	}

	var nextRun time.Time
	for _, entry := range ms.cron.Entries() {
		if entry.ID == entryID {
			nextRun = entry.Next
			break
		}
	}

	ms.jobs[id] = JobInfo{
		ID:       id,
		Name:     name,
		Schedule: schedule,
		NextRun:  nextRun,
		Status:   "scheduled",
	}
	return nil
}

func (ms *MaintenanceService) runJob(id, name string, jobFunc func() error) {
	logger := ms.logger.WithFields(logrus.Fields{
		"component": "maintenance",
		"job":       id,
	})
	logger.Info("Maintenance job started")

	start := time.Now()
	err := jobFunc()
	duration := time.Since(start)

	ms.mu.Lock()
	job := ms.jobs[id]
	job.LastRun = start
	job.RunCount++
	job.Duration = duration
	if err != nil {
		job.Status = "failed"
		job.ErrorCount++
		job.LastError = err.Error()
	} else {
		job.Status = "completed"
		job.LastError = ""
	}
	ms.jobs[id] = job
	ms.mu.Unlock()

	if err != nil {
		logger.WithError(err).WithField("duration", duration).Error("Maintenance job failed")
		return
	}
	logger.WithField("duration", duration).Info("Maintenance job completed")
}

// cleanupAgedRuns deletes runs past the retention window along with their
// saved lineups
func (ms *MaintenanceService) cleanupAgedRuns() error {
	cutoff := time.Now().UTC().AddDate(0, 0, -ms.retentionDays)

	agedRuns := ms.db.Model(&models.OptimizationRun{}).
		Select("id").
		Where("created_at < ?", cutoff)

	lineups := ms.db.Where("run_id IN (?)", agedRuns).Delete(&models.SavedLineup{})
	if lineups.Error != nil {
		return fmt.Errorf("failed to delete aged lineups: %w", lineups.Error)
	}

	runs := ms.db.Where("created_at < ?", cutoff).Delete(&models.OptimizationRun{})
	if runs.Error != nil {
		return fmt.Errorf("failed to delete aged runs: %w", runs.Error)
	}

	ms.logger.WithFields(logrus.Fields{
		"component":       "maintenance",
		"cutoff":          cutoff.Format("2006-01-02"),
		"runs_deleted":    runs.RowsAffected,
		"lineups_deleted": lineups.RowsAffected,
	}).Info("Aged runs cleaned up")
	return nil
}

// sweepCache purges accumulated result keys
func (ms *MaintenanceService) sweepCache() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := ms.cache.PurgeResults(ctx)
	return err
}

// Jobs returns a snapshot of job statuses for the ops endpoint
func (ms *MaintenanceService) Jobs() []JobInfo {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	jobs := make([]JobInfo, 0, len(ms.jobs))
	for _, job := range ms.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Stop stops the scheduler, waiting briefly for running jobs
func (ms *MaintenanceService) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.isRunning {
		return
	}

	ctx := ms.cron.Stop()
	select {
	case <-ctx.Done():
		ms.logger.WithField("component", "maintenance").Info("Maintenance scheduler stopped")
	case <-time.After(5 * time.Second):
		ms.logger.WithField("component", "maintenance").Warn("Maintenance scheduler stop timed out")
	}
	ms.isRunning = false
}
