package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jstittsworth/lineup-engine/internal/models"
	"github.com/jstittsworth/lineup-engine/internal/optimizer"
	"github.com/jstittsworth/lineup-engine/internal/services"
	"github.com/jstittsworth/lineup-engine/pkg/database"
	"github.com/jstittsworth/lineup-engine/pkg/utils"
)

type RunHandler struct {
	db            *database.DB
	exportService *services.ExportService
}

func NewRunHandler(db *database.DB) *RunHandler {
	return &RunHandler{
		db:            db,
		exportService: services.NewExportService(),
	}
}

// GetRun returns one run's status and, once completed, its result set
func (h *RunHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendValidationError(c, "Invalid run ID", err.Error())
		return
	}

	var run models.OptimizationRun
	if err := h.db.First(&run, "id = ?", runID).Error; err != nil {
		utils.SendNotFound(c, "Run not found")
		return
	}

	utils.SendSuccess(c, run)
}

// ListRuns returns runs, newest first, optionally filtered by slate or status
func (h *RunHandler) ListRuns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("perPage", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	query := h.db.Model(&models.OptimizationRun{})
	if slateID := c.Query("slate_id"); slateID != "" {
		query = query.Where("slate_id = ?", slateID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	offset := (page - 1) * perPage
	var runs []models.OptimizationRun
	if err := query.Offset(offset).Limit(perPage).Order("created_at DESC").Find(&runs).Error; err != nil {
		utils.SendInternalError(c, "Failed to fetch runs")
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	utils.SendSuccessWithMeta(c, runs, &utils.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// ExportRun streams a completed run's lineups as an upload-ready CSV.
// ?detailed=true appends salary and projection columns.
func (h *RunHandler) ExportRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendValidationError(c, "Invalid run ID", err.Error())
		return
	}

	var run models.OptimizationRun
	if err := h.db.First(&run, "id = ?", runID).Error; err != nil {
		utils.SendNotFound(c, "Run not found")
		return
	}
	if run.Status != models.RunStatusCompleted {
		utils.SendConflict(c, fmt.Sprintf("Run is %s, not completed", run.Status))
		return
	}

	set, err := run.DecodeResult()
	if err != nil {
		utils.SendInternalError(c, "Failed to decode run result")
		return
	}
	if set == nil || len(set.Lineups) == 0 {
		utils.SendConflict(c, "Run completed without any lineups")
		return
	}

	schema := schemaFromStoredRequest(run.Request)

	var data []byte
	if c.Query("detailed") == "true" {
		data, err = h.exportService.ExportDetailedCSV(set.Lineups, schema)
	} else {
		data, err = h.exportService.ExportCSV(set.Lineups, schema)
	}
	if err != nil {
		utils.SendInternalError(c, "Failed to export lineups")
		return
	}

	fileName := h.exportService.FileName("run_"+runID.String()[:8], len(set.Lineups))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	c.Data(http.StatusOK, "text/csv", data)
}

// schemaFromStoredRequest recovers the roster shape a run was generated
// under; runs without an explicit schema used the DraftKings NFL default.
func schemaFromStoredRequest(raw []byte) optimizer.RosterSchema {
	schema := optimizer.DraftKingsNFL()
	if len(raw) == 0 {
		return schema
	}
	var req struct {
		Schema *optimizer.RosterSchema `json:"schema"`
	}
	if err := json.Unmarshal(raw, &req); err == nil && req.Schema != nil {
		schema = *req.Schema
	}
	return schema
}
