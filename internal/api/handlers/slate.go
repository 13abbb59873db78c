package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/lineup-engine/internal/models"
	"github.com/jstittsworth/lineup-engine/internal/providers"
	"github.com/jstittsworth/lineup-engine/internal/services"
	"github.com/jstittsworth/lineup-engine/internal/websocket"
	"github.com/jstittsworth/lineup-engine/pkg/config"
	"github.com/jstittsworth/lineup-engine/pkg/database"
	"github.com/jstittsworth/lineup-engine/pkg/utils"
)

// maxStoredImportErrors caps how many per-row errors are persisted with a slate
const maxStoredImportErrors = 50

type SlateHandler struct {
	db       *database.DB
	importer *providers.DraftKingsImporter
	pool     *services.PoolService
	alerts   *services.AlertService
	hub      *websocket.Hub
	config   *config.Config
	logger   *logrus.Logger
}

func NewSlateHandler(db *database.DB, alerts *services.AlertService, hub *websocket.Hub, cfg *config.Config, logger *logrus.Logger) *SlateHandler {
	return &SlateHandler{
		db:       db,
		importer: providers.NewDraftKingsImporter(logger),
		pool:     services.NewPoolService(logger),
		alerts:   alerts,
		hub:      hub,
		config:   cfg,
		logger:   logger,
	}
}

// ImportSlate ingests a DraftKings salary CSV and persists the player pool
func (h *SlateHandler) ImportSlate(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.SendValidationError(c, "CSV file is required", "upload the salary file under the 'file' form field")
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fileHeader.Filename
	}

	salaryCap := h.config.SalaryCap
	if capStr := c.PostForm("salary_cap"); capStr != "" {
		parsed, err := strconv.Atoi(capStr)
		if err != nil || parsed <= 0 {
			utils.SendValidationError(c, "Invalid salary cap", capStr)
			return
		}
		salaryCap = parsed
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.SendInternalError(c, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	result, err := h.importer.Import(file)
	if err != nil {
		h.logger.WithError(err).WithField("file", fileHeader.Filename).Warn("Slate import rejected")
		if h.alerts != nil {
			go h.alerts.NotifyImportFailed(name, err.Error())
		}
		utils.SendError(c, http.StatusBadRequest, utils.NewAppError(utils.ErrCodeImport, "Slate import failed", err.Error()))
		return
	}
	if result.Imported == 0 {
		if h.alerts != nil {
			go h.alerts.NotifyImportFailed(name, "no valid players in file")
		}
		utils.SendError(c, http.StatusBadRequest, utils.NewAppError(utils.ErrCodeImport, "Slate import failed",
			fmt.Sprintf("no valid players in file (%d rows skipped)", result.Skipped)))
		return
	}

	storedErrors := result.Errors
	if len(storedErrors) > maxStoredImportErrors {
		storedErrors = append(storedErrors[:maxStoredImportErrors:maxStoredImportErrors],
			fmt.Sprintf("... and %d more", len(result.Errors)-maxStoredImportErrors))
	}

	slate := models.Slate{
		Name:         name,
		Source:       "draftkings",
		SalaryCap:    salaryCap,
		PlayerCount:  result.Imported,
		ImportErrors: storedErrors,
	}
	if err := h.db.Create(&slate).Error; err != nil {
		utils.SendInternalError(c, "Failed to save slate")
		return
	}

	rows := models.SlatePlayersFromPool(slate.ID, result.Players)
	if err := h.db.Create(&rows).Error; err != nil {
		utils.SendInternalError(c, "Failed to save slate players")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"slate_id": slate.ID,
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("Slate imported")

	h.hub.BroadcastToAll(gin.H{
		"type":         "slate_imported",
		"slate_id":     slate.ID,
		"name":         slate.Name,
		"player_count": slate.PlayerCount,
	})

	utils.SendSuccess(c, gin.H{
		"slate":    slate,
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   storedErrors,
	})
}

// ListSlates returns imported slates, newest first
func (h *SlateHandler) ListSlates(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("perPage", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	query := h.db.Model(&models.Slate{})

	var total int64
	query.Count(&total)

	offset := (page - 1) * perPage
	var slates []models.Slate
	if err := query.Offset(offset).Limit(perPage).Order("created_at DESC").Find(&slates).Error; err != nil {
		utils.SendInternalError(c, "Failed to fetch slates")
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	utils.SendSuccessWithMeta(c, slates, &utils.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// GetSlatePlayers returns one slate's pool, optionally filtered and trimmed.
// Passing ?quantile= (or ?trim=true) applies the projection-quantile cut;
// salary and team filters apply on their own without it.
func (h *SlateHandler) GetSlatePlayers(c *gin.Context) {
	slateID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.SendValidationError(c, "Invalid slate ID", err.Error())
		return
	}

	var slate models.Slate
	if err := h.db.First(&slate, slateID).Error; err != nil {
		utils.SendNotFound(c, "Slate not found")
		return
	}

	var rows []models.SlatePlayer
	if err := h.db.Where("slate_id = ?", slate.ID).Order("id ASC").Find(&rows).Error; err != nil {
		utils.SendInternalError(c, "Failed to fetch slate players")
		return
	}
	players := models.PoolFromSlatePlayers(rows)

	if team := strings.ToUpper(c.Query("team")); team != "" {
		kept := players[:0]
		for _, p := range players {
			if strings.ToUpper(p.Team) == team {
				kept = append(kept, p)
			}
		}
		players = kept
	}

	minSalary, _ := strconv.Atoi(c.Query("min_salary"))
	maxSalary, _ := strconv.Atoi(c.Query("max_salary"))
	excludeTeams := splitTeams(c.Query("exclude_teams"))

	trimRequested := c.Query("quantile") != "" || c.Query("trim") == "true"
	response := gin.H{"slate": slate}

	if trimRequested {
		opts := services.TrimOptions{
			MinSalary:    minSalary,
			MaxSalary:    maxSalary,
			ExcludeTeams: excludeTeams,
		}
		if q := c.Query("quantile"); q != "" {
			parsed, err := strconv.ParseFloat(q, 64)
			if err != nil {
				utils.SendValidationError(c, "Invalid quantile", q)
				return
			}
			opts.OffenseQuantile = parsed
		}
		if q := c.Query("defense_quantile"); q != "" {
			parsed, err := strconv.ParseFloat(q, 64)
			if err != nil {
				utils.SendValidationError(c, "Invalid defense quantile", q)
				return
			}
			opts.DefenseQuantile = parsed
		}

		trimmed, err := h.pool.Trim(players, opts)
		if err != nil {
			utils.SendValidationError(c, "Invalid trim options", err.Error())
			return
		}
		players = trimmed.Players
		response["removed"] = trimmed.Removed
		response["thresholds"] = trimmed.Thresholds
	} else {
		excluded := make(map[string]bool, len(excludeTeams))
		for _, team := range excludeTeams {
			excluded[strings.ToUpper(team)] = true
		}
		kept := players[:0]
		for _, p := range players {
			if excluded[strings.ToUpper(p.Team)] {
				continue
			}
			if minSalary > 0 && p.Salary < minSalary {
				continue
			}
			if maxSalary > 0 && p.Salary > maxSalary {
				continue
			}
			kept = append(kept, p)
		}
		players = kept
	}

	response["players"] = players
	response["summary"] = h.pool.Summarize(players)
	utils.SendSuccess(c, response)
}

// GetSlate returns a single slate without its players
func (h *SlateHandler) GetSlate(c *gin.Context) {
	slateID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.SendValidationError(c, "Invalid slate ID", err.Error())
		return
	}

	var slate models.Slate
	if err := h.db.First(&slate, slateID).Error; err != nil {
		utils.SendNotFound(c, "Slate not found")
		return
	}

	utils.SendSuccess(c, slate)
}

// DeleteSlate removes a slate and its players
func (h *SlateHandler) DeleteSlate(c *gin.Context) {
	slateID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.SendValidationError(c, "Invalid slate ID", err.Error())
		return
	}

	var slate models.Slate
	if err := h.db.First(&slate, slateID).Error; err != nil {
		utils.SendNotFound(c, "Slate not found")
		return
	}

	if err := h.db.Where("slate_id = ?", slate.ID).Delete(&models.SlatePlayer{}).Error; err != nil {
		utils.SendInternalError(c, "Failed to delete slate players")
		return
	}
	if err := h.db.Delete(&slate).Error; err != nil {
		utils.SendInternalError(c, "Failed to delete slate")
		return
	}

	utils.SendSuccess(c, gin.H{"deleted": slate.ID})
}

func splitTeams(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	teams := make([]string, 0, len(parts))
	for _, part := range parts {
		if team := strings.TrimSpace(part); team != "" {
			teams = append(teams, team)
		}
	}
	return teams
}
