package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/jstittsworth/lineup-engine/internal/cache"
	"github.com/jstittsworth/lineup-engine/internal/models"
	"github.com/jstittsworth/lineup-engine/internal/optimizer"
	"github.com/jstittsworth/lineup-engine/internal/services"
	"github.com/jstittsworth/lineup-engine/internal/websocket"
	"github.com/jstittsworth/lineup-engine/pkg/config"
	"github.com/jstittsworth/lineup-engine/pkg/database"
	"github.com/jstittsworth/lineup-engine/pkg/utils"
)

type OptimizerHandler struct {
	db     *database.DB
	cache  *cache.ResultCache
	hub    *websocket.Hub
	alerts *services.AlertService
	pool   *services.PoolService
	config *config.Config
	logger *logrus.Logger
}

func NewOptimizerHandler(db *database.DB, resultCache *cache.ResultCache, hub *websocket.Hub, alerts *services.AlertService, cfg *config.Config, logger *logrus.Logger) *OptimizerHandler {
	return &OptimizerHandler{
		db:     db,
		cache:  resultCache,
		hub:    hub,
		alerts: alerts,
		pool:   services.NewPoolService(logger),
		config: cfg,
		logger: logger,
	}
}

// optimizeRequest selects a player pool (inline or persisted slate), the
// roster shape, and the utility strategy for one solve. A quantile, when
// set, trims the pool before the solve.
type optimizeRequest struct {
	SlateID   *uint                   `json:"slate_id"`
	Players   []optimizer.Player      `json:"players"`
	Schema    *optimizer.RosterSchema `json:"schema"`
	SalaryCap int                     `json:"salary_cap"`
	Strategy  string                  `json:"strategy"`
	KWeight   float64                 `json:"k_weight"`
	Seed      int64                   `json:"seed"`
	Quantile  *float64                `json:"quantile"`
}

type generateRequest struct {
	optimizeRequest
	Count      int  `json:"count" binding:"required,min=1"`
	MaxOverlap *int `json:"max_overlap"`
}

// resolvePool returns the player pool for a request: inline players win,
// otherwise the slate's persisted pool is loaded.
func (h *OptimizerHandler) resolvePool(req *optimizeRequest) ([]optimizer.Player, *models.Slate, error) {
	if len(req.Players) > 0 {
		for _, p := range req.Players {
			if err := p.Validate(); err != nil {
				return nil, nil, err
			}
		}
		return req.Players, nil, nil
	}

	if req.SlateID == nil {
		return nil, nil, errors.New("either players or slate_id is required")
	}

	var slate models.Slate
	if err := h.db.First(&slate, *req.SlateID).Error; err != nil {
		return nil, nil, errors.New("slate not found")
	}

	var rows []models.SlatePlayer
	if err := h.db.Where("slate_id = ?", slate.ID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, nil, errors.New("failed to load slate players")
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("slate has no players")
	}

	return models.PoolFromSlatePlayers(rows), &slate, nil
}

// trimPool applies the projection-quantile cut ahead of a solve when the
// request asks for one. The defense floor keeps its default.
func (h *OptimizerHandler) trimPool(players []optimizer.Player, req *optimizeRequest) ([]optimizer.Player, error) {
	if req.Quantile == nil || *req.Quantile <= 0 {
		return players, nil
	}
	result, err := h.pool.Trim(players, services.TrimOptions{OffenseQuantile: *req.Quantile})
	if err != nil {
		return nil, err
	}
	return result.Players, nil
}

// resolveSchema picks the roster schema: explicit schema from the request,
// else the DraftKings NFL default. Salary cap overrides apply in order:
// request cap, then slate cap when the schema was defaulted.
func (h *OptimizerHandler) resolveSchema(req *optimizeRequest, slate *models.Slate) (optimizer.RosterSchema, error) {
	schema := optimizer.DraftKingsNFL()
	if req.Schema != nil {
		schema = *req.Schema
	}

	if req.SalaryCap > 0 {
		schema.SalaryCap = req.SalaryCap
	} else if req.Schema == nil && slate != nil && slate.SalaryCap > 0 {
		schema.SalaryCap = slate.SalaryCap
	}
	if schema.SalaryCap <= 0 {
		schema.SalaryCap = h.config.SalaryCap
	}

	if err := schema.Validate(); err != nil {
		return optimizer.RosterSchema{}, err
	}
	return schema, nil
}

func (h *OptimizerHandler) resolveStrategy(req *optimizeRequest) (optimizer.StrategyConfig, error) {
	name := req.Strategy
	if name == "" {
		name = string(optimizer.StrategyValue)
	}
	strategy, err := optimizer.ParseStrategy(name)
	if err != nil {
		return optimizer.StrategyConfig{}, err
	}
	return optimizer.StrategyConfig{
		Strategy: strategy,
		KWeight:  req.KWeight,
		Seed:     req.Seed,
	}, nil
}

func (h *OptimizerHandler) optimizeConfig() optimizer.OptimizeConfig {
	return optimizer.OptimizeConfig{
		ExactThreshold: h.config.ExactModeThreshold,
		TimeBudget:     time.Duration(h.config.OptimizationTimeout) * time.Second,
		SwapBudget:     h.config.SwapBudget,
	}
}

func sendOptimizerError(c *gin.Context, err error) {
	var insufficient *optimizer.InsufficientCandidatesError
	var infeasible *optimizer.NoFeasibleLineupError

	switch {
	case errors.As(err, &insufficient):
		utils.SendError(c, http.StatusUnprocessableEntity,
			utils.NewAppError(utils.ErrCodeInsufficientCandidates, "Player pool too thin", err.Error()))
	case errors.As(err, &infeasible):
		utils.SendError(c, http.StatusUnprocessableEntity,
			utils.NewAppError(utils.ErrCodeNoFeasibleLineup, "No lineup fits the constraints", err.Error()))
	default:
		utils.SendError(c, http.StatusInternalServerError,
			utils.NewAppError(utils.ErrCodeOptimization, "Optimization failed", err.Error()))
	}
}

// Optimize builds the single best lineup for the requested pool and strategy
func (h *OptimizerHandler) Optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	players, slate, err := h.resolvePool(&req)
	if err != nil {
		utils.SendValidationError(c, "Invalid player pool", err.Error())
		return
	}
	players, err = h.trimPool(players, &req)
	if err != nil {
		utils.SendValidationError(c, "Invalid quantile", err.Error())
		return
	}
	schema, err := h.resolveSchema(&req, slate)
	if err != nil {
		utils.SendValidationError(c, "Invalid roster schema", err.Error())
		return
	}
	strategy, err := h.resolveStrategy(&req)
	if err != nil {
		utils.SendValidationError(c, "Invalid strategy", err.Error())
		return
	}

	ctx := c.Request.Context()
	cacheKey := cache.SingleKey(players, schema, strategy)

	if h.cache != nil {
		if cached, _ := h.cache.GetLineup(ctx, cacheKey); cached != nil {
			warnings := []string{}
			if annotation, err := optimizer.Annotate(players, strategy); err == nil && annotation.Degraded != nil {
				warnings = append(warnings, annotation.Degraded.String())
			}
			utils.SendSuccess(c, gin.H{
				"lineup":   cached,
				"warnings": warnings,
				"cached":   true,
			})
			return
		}
	}

	opt := optimizer.NewOptimizer(h.optimizeConfig(), h.logger)
	lineup, degraded, err := opt.Optimize(players, schema, strategy)
	if err != nil {
		sendOptimizerError(c, err)
		return
	}

	warnings := []string{}
	if degraded != nil {
		warnings = append(warnings, degraded.String())
	}

	if h.cache != nil {
		if err := h.cache.SetLineup(ctx, cacheKey, &lineup); err != nil {
			h.logger.WithError(err).Debug("Failed to cache single lineup")
		}
	}

	utils.SendSuccess(c, gin.H{
		"lineup":   lineup,
		"warnings": warnings,
		"cached":   false,
	})
}

// GenerateLineups starts an asynchronous batch run and returns its run ID.
// Progress streams over the run's websocket; the finished set is persisted
// on the run row.
func (h *OptimizerHandler) GenerateLineups(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	if req.Count > h.config.MaxLineups {
		utils.SendValidationError(c, "Too many lineups requested",
			"maximum allowed: "+strconv.Itoa(h.config.MaxLineups))
		return
	}

	players, slate, err := h.resolvePool(&req.optimizeRequest)
	if err != nil {
		utils.SendValidationError(c, "Invalid player pool", err.Error())
		return
	}
	players, err = h.trimPool(players, &req.optimizeRequest)
	if err != nil {
		utils.SendValidationError(c, "Invalid quantile", err.Error())
		return
	}
	schema, err := h.resolveSchema(&req.optimizeRequest, slate)
	if err != nil {
		utils.SendValidationError(c, "Invalid roster schema", err.Error())
		return
	}
	strategy, err := h.resolveStrategy(&req.optimizeRequest)
	if err != nil {
		utils.SendValidationError(c, "Invalid strategy", err.Error())
		return
	}

	maxOverlap := schema.RosterSize()
	if req.MaxOverlap != nil {
		if *req.MaxOverlap < 0 {
			utils.SendValidationError(c, "Invalid overlap budget", "max_overlap must be non-negative")
			return
		}
		maxOverlap = *req.MaxOverlap
	}

	genCfg := optimizer.GenerateConfig{
		Count:         req.Count,
		MaxOverlap:    maxOverlap,
		RetryBudget:   h.config.OverlapRetryBudget,
		PenaltyWeight: h.config.ExposurePenalty,
	}

	rawReq, err := json.Marshal(req)
	if err != nil {
		utils.SendInternalError(c, "Failed to encode request")
		return
	}

	run := &models.OptimizationRun{
		ID:             uuid.New(),
		Status:         models.RunStatusPending,
		Strategy:       string(strategy.Strategy),
		Seed:           strategy.Seed,
		KWeight:        strategy.KWeight,
		RequestedCount: req.Count,
		MaxOverlap:     maxOverlap,
		Request:        datatypes.JSON(rawReq),
	}
	if slate != nil {
		run.SlateID = &slate.ID
	}
	if err := h.db.Create(run).Error; err != nil {
		utils.SendInternalError(c, "Failed to create run")
		return
	}

	go h.executeRun(run, players, schema, strategy, genCfg)

	utils.SendAccepted(c, gin.H{
		"run_id":    run.ID,
		"status":    run.Status,
		"websocket": "/ws/runs/" + run.ID.String(),
	})
}

// executeRun drives one batch generation to completion off the request
// goroutine, persisting state transitions as it goes.
func (h *OptimizerHandler) executeRun(run *models.OptimizationRun, players []optimizer.Player, schema optimizer.RosterSchema, strategy optimizer.StrategyConfig, genCfg optimizer.GenerateConfig) {
	runLogger := h.logger.WithFields(logrus.Fields{
		"run_id":   run.ID.String(),
		"strategy": run.Strategy,
	})

	run.MarkRunning()
	if err := h.db.Save(run).Error; err != nil {
		runLogger.WithError(err).Error("Failed to persist run start")
	}

	relay := h.hub.RelayProgress(run.ID.String())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cacheKey := cache.ResultKey(players, schema, strategy, genCfg)
	var set *optimizer.LineupSet
	if h.cache != nil {
		if cached, _ := h.cache.GetLineupSet(ctx, cacheKey); cached != nil {
			runLogger.Info("Serving batch run from cache")
			set = cached
			relay(optimizer.Event{Type: optimizer.EventDone, Index: genCfg.Count})
		}
	}

	if set == nil {
		opt := optimizer.NewOptimizer(h.optimizeConfig(), h.logger)
		generator := optimizer.NewGenerator(opt, genCfg, h.logger)
		generator.OnProgress(relay)

		result, err := generator.Generate(players, schema, strategy)
		if err != nil {
			runLogger.WithError(err).Error("Batch run failed")
			run.MarkFailed(err)
			if saveErr := h.db.Save(run).Error; saveErr != nil {
				runLogger.WithError(saveErr).Error("Failed to persist run failure")
			}
			if h.alerts != nil {
				if alertErr := h.alerts.NotifyRunFailed(run, err.Error()); alertErr != nil {
					runLogger.WithError(alertErr).Debug("Run failure alert not sent")
				}
			}
			return
		}
		set = result

		if h.cache != nil {
			if err := h.cache.SetLineupSet(ctx, cacheKey, set); err != nil {
				runLogger.WithError(err).Debug("Failed to cache lineup set")
			}
		}
	}

	if err := run.SetResult(set); err != nil {
		runLogger.WithError(err).Error("Failed to encode run result")
		run.MarkFailed(err)
		if saveErr := h.db.Save(run).Error; saveErr != nil {
			runLogger.WithError(saveErr).Error("Failed to persist run failure")
		}
		return
	}
	if err := h.db.Save(run).Error; err != nil {
		runLogger.WithError(err).Error("Failed to persist run result")
	}

	if len(set.Lineups) > 0 {
		saved, err := models.SavedLineupsFromSet(run.ID, set)
		if err != nil {
			runLogger.WithError(err).Error("Failed to encode saved lineups")
		} else if err := h.db.Create(&saved).Error; err != nil {
			runLogger.WithError(err).Error("Failed to persist saved lineups")
		}
	}

	runLogger.WithFields(logrus.Fields{
		"built":   run.BuiltCount,
		"skipped": run.SkippedCount,
	}).Info("Batch run completed")

	if h.alerts != nil && set.SkippedCount() > 0 {
		if err := h.alerts.NotifyRunCompleted(run); err != nil {
			runLogger.WithError(err).Debug("Run completion alert not sent")
		}
	}
}

// ValidateLineup explains every roster violation in a submitted lineup
func (h *OptimizerHandler) ValidateLineup(c *gin.Context) {
	var req struct {
		Slots     []optimizer.LineupSlot  `json:"slots" binding:"required,min=1"`
		Schema    *optimizer.RosterSchema `json:"schema"`
		SalaryCap int                     `json:"salary_cap"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	schema := optimizer.DraftKingsNFL()
	if req.Schema != nil {
		schema = *req.Schema
	}
	if req.SalaryCap > 0 {
		schema.SalaryCap = req.SalaryCap
	}
	if err := schema.Validate(); err != nil {
		utils.SendValidationError(c, "Invalid roster schema", err.Error())
		return
	}

	lineup := optimizer.NewLineup(req.Slots)
	violations := optimizer.Explain(lineup, schema)

	utils.SendSuccess(c, gin.H{
		"feasible":        len(violations) == 0,
		"violations":      violations,
		"total_salary":    lineup.TotalSalary,
		"total_projected": lineup.TotalProjected,
		"salary_cap":      schema.SalaryCap,
	})
}
