package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jstittsworth/lineup-engine/internal/models"
	"github.com/jstittsworth/lineup-engine/internal/optimizer"
	"github.com/jstittsworth/lineup-engine/internal/services"
	"github.com/jstittsworth/lineup-engine/internal/websocket"
	"github.com/jstittsworth/lineup-engine/pkg/config"
	"github.com/jstittsworth/lineup-engine/pkg/database"
)

const slateCSV = `Position,Name + ID,Name,ID,Roster Position,Salary,Game Info,TeamAbbrev,AvgPointsPerGame
QB,Josh Allen (1111),Josh Allen,1111,QB,6000,BUF@MIA,BUF,24.1
QB,Jared Goff (1112),Jared Goff,1112,QB,5500,DET@GB,DET,19.8
RB,Saquon Barkley (1113),Saquon Barkley,1113,RB/FLEX,5400,PHI@DAL,PHI,19.1
RB,Bijan Robinson (1114),Bijan Robinson,1114,RB/FLEX,5000,ATL@NO,ATL,17.2
RB,Jahmyr Gibbs (1115),Jahmyr Gibbs,1115,RB/FLEX,4800,DET@GB,DET,16.8
RB,James Cook (1116),James Cook,1116,RB/FLEX,4600,BUF@MIA,BUF,14.9
RB,Kyren Williams (1117),Kyren Williams,1117,RB/FLEX,4400,LAR@SF,LAR,13.7
WR,Justin Jefferson (1118),Justin Jefferson,1118,WR/FLEX,5200,MIN@CHI,MIN,18.4
WR,CeeDee Lamb (1119),CeeDee Lamb,1119,WR/FLEX,5000,DAL@PHI,DAL,17.9
WR,Amon-Ra St. Brown (1120),Amon-Ra St. Brown,1120,WR/FLEX,4800,DET@GB,DET,16.5
WR,Puka Nacua (1121),Puka Nacua,1121,WR/FLEX,4700,LAR@SF,LAR,16.2
WR,Nico Collins (1122),Nico Collins,1122,WR/FLEX,4600,HOU@IND,HOU,15.1
WR,DJ Moore (1123),DJ Moore,1123,WR/FLEX,4400,MIN@CHI,CHI,13.9
TE,Sam LaPorta (1124),Sam LaPorta,1124,TE/FLEX,4000,DET@GB,DET,12.3
TE,Trey McBride (1125),Trey McBride,1125,TE/FLEX,3800,ARI@SEA,ARI,11.8
DST,Ravens (1126),Ravens,1126,DST,3000,BAL@CIN,BAL,9.5
DST,Broken Row (1127),Broken Row,1127,DST,not-a-number,BAL@CIN,BAL,8.0
`

type HandlerTestSuite struct {
	suite.Suite
	db     *database.DB
	router *gin.Engine
	hub    *websocket.Hub
	cfg    *config.Config
}

func (s *HandlerTestSuite) SetupSuite() {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	s.Require().NoError(err)

	// A single connection keeps every goroutine on the same in-memory DB
	sqlDB, err := gormDB.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)

	s.db = &database.DB{DB: gormDB}
	s.Require().NoError(s.db.AutoMigrate(
		&models.Slate{},
		&models.SlatePlayer{},
		&models.OptimizationRun{},
		&models.SavedLineup{},
	))

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	s.hub = websocket.NewHub(logger)
	go s.hub.Run()

	s.cfg = &config.Config{
		SalaryCap:           50000,
		ExactModeThreshold:  60,
		OptimizationTimeout: 10,
		SwapBudget:          200,
		MaxLineups:          150,
		OverlapRetryBudget:  10,
		ExposurePenalty:     1.0,
		SMSRateLimit:        10,
		SMSRateWindow:       time.Hour,
	}
	alerts := services.NewAlertService(s.cfg, logger)

	slateHandler := NewSlateHandler(s.db, alerts, s.hub, s.cfg, logger)
	optimizerHandler := NewOptimizerHandler(s.db, nil, s.hub, alerts, s.cfg, logger)
	runHandler := NewRunHandler(s.db)
	healthHandler := NewHealthHandler(s.db, nil, nil, s.hub)

	gin.SetMode(gin.TestMode)
	s.router = gin.New()
	s.router.GET("/health", healthHandler.GetHealth)
	s.router.GET("/ready", healthHandler.GetReady)

	v1 := s.router.Group("/api/v1")
	v1.POST("/slates/import", slateHandler.ImportSlate)
	v1.GET("/slates", slateHandler.ListSlates)
	v1.GET("/slates/:id", slateHandler.GetSlate)
	v1.GET("/slates/:id/players", slateHandler.GetSlatePlayers)
	v1.DELETE("/slates/:id", slateHandler.DeleteSlate)
	v1.POST("/optimize", optimizerHandler.Optimize)
	v1.POST("/optimize/generate", optimizerHandler.GenerateLineups)
	v1.POST("/optimize/validate", optimizerHandler.ValidateLineup)
	v1.GET("/runs", runHandler.ListRuns)
	v1.GET("/runs/:id", runHandler.GetRun)
	v1.GET("/runs/:id/export", runHandler.ExportRun)
}

func (s *HandlerTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM saved_lineups")
	s.db.Exec("DELETE FROM optimization_runs")
	s.db.Exec("DELETE FROM slate_players")
	s.db.Exec("DELETE FROM slates")
}

func (s *HandlerTestSuite) postJSON(path string, payload interface{}) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerTestSuite) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerTestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

// testPool returns an inline pool big enough for exact optimization but
// small enough to solve instantly
func testPool() []optimizer.Player {
	variance := func(v float64) *float64 { return &v }
	return []optimizer.Player{
		{Name: "Josh Allen", Team: "BUF", Position: optimizer.PositionQB, Salary: 6000, ProjectedPoints: 24.1, VarianceProxy: variance(5.0)},
		{Name: "Jared Goff", Team: "DET", Position: optimizer.PositionQB, Salary: 5500, ProjectedPoints: 19.8, VarianceProxy: variance(4.0)},
		{Name: "Bijan Robinson", Team: "ATL", Position: optimizer.PositionRB, Salary: 5000, ProjectedPoints: 17.2, VarianceProxy: variance(3.5)},
		{Name: "Jahmyr Gibbs", Team: "DET", Position: optimizer.PositionRB, Salary: 4800, ProjectedPoints: 16.8, VarianceProxy: variance(3.8)},
		{Name: "James Cook", Team: "BUF", Position: optimizer.PositionRB, Salary: 4600, ProjectedPoints: 14.9, VarianceProxy: variance(3.1)},
		{Name: "Kyren Williams", Team: "LAR", Position: optimizer.PositionRB, Salary: 4400, ProjectedPoints: 13.7, VarianceProxy: variance(2.9)},
		{Name: "Justin Jefferson", Team: "MIN", Position: optimizer.PositionWR, Salary: 5200, ProjectedPoints: 18.4, VarianceProxy: variance(4.2)},
		{Name: "CeeDee Lamb", Team: "DAL", Position: optimizer.PositionWR, Salary: 5000, ProjectedPoints: 17.9, VarianceProxy: variance(4.0)},
		{Name: "Amon-Ra St. Brown", Team: "DET", Position: optimizer.PositionWR, Salary: 4800, ProjectedPoints: 16.5, VarianceProxy: variance(3.6)},
		{Name: "Nico Collins", Team: "HOU", Position: optimizer.PositionWR, Salary: 4600, ProjectedPoints: 15.1, VarianceProxy: variance(3.3)},
		{Name: "DJ Moore", Team: "CHI", Position: optimizer.PositionWR, Salary: 4400, ProjectedPoints: 13.9, VarianceProxy: variance(3.0)},
		{Name: "Sam LaPorta", Team: "DET", Position: optimizer.PositionTE, Salary: 4000, ProjectedPoints: 12.3, VarianceProxy: variance(2.5)},
		{Name: "Trey McBride", Team: "ARI", Position: optimizer.PositionTE, Salary: 3800, ProjectedPoints: 11.8, VarianceProxy: variance(2.3)},
		{Name: "Ravens", Team: "BAL", Position: optimizer.PositionDST, Salary: 3000, ProjectedPoints: 9.5, VarianceProxy: variance(2.0)},
		{Name: "Browns", Team: "CLE", Position: optimizer.PositionDST, Salary: 2800, ProjectedPoints: 8.2, VarianceProxy: variance(1.8)},
	}
}

func (s *HandlerTestSuite) TestHealthEndpoints() {
	w := s.get("/health")
	s.Equal(http.StatusOK, w.Code)

	w = s.get("/ready")
	s.Equal(http.StatusOK, w.Code)

	var status map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &status))
	s.Equal("ready", status["status"])
	checks := status["checks"].(map[string]interface{})
	s.Equal("ok", checks["database"])
	s.Equal("disabled", checks["redis"])
}

func (s *HandlerTestSuite) TestOptimizeInlinePool() {
	w := s.postJSON("/api/v1/optimize", gin.H{
		"players":  testPool(),
		"strategy": "value",
	})
	s.Equal(http.StatusOK, w.Code)

	response := s.decode(w)
	s.True(response["success"].(bool))

	data := response["data"].(map[string]interface{})
	s.Equal(false, data["cached"])
	s.Empty(data["warnings"])

	lineup := data["lineup"].(map[string]interface{})
	slots := lineup["slots"].([]interface{})
	s.Len(slots, 9)
	s.LessOrEqual(lineup["total_salary"].(float64), float64(50000))
}

func (s *HandlerTestSuite) TestOptimizeRequiresPool() {
	w := s.postJSON("/api/v1/optimize", gin.H{"strategy": "value"})
	s.Equal(http.StatusBadRequest, w.Code)

	response := s.decode(w)
	s.False(response["success"].(bool))
}

func (s *HandlerTestSuite) TestOptimizeUnknownStrategy() {
	w := s.postJSON("/api/v1/optimize", gin.H{
		"players":  testPool(),
		"strategy": "yolo",
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerTestSuite) TestOptimizeThinPool() {
	var pool []optimizer.Player
	for _, p := range testPool() {
		if p.Position != optimizer.PositionQB {
			pool = append(pool, p)
		}
	}

	w := s.postJSON("/api/v1/optimize", gin.H{"players": pool})
	s.Equal(http.StatusUnprocessableEntity, w.Code)

	response := s.decode(w)
	errObj := response["error"].(map[string]interface{})
	s.Equal("INSUFFICIENT_CANDIDATES", errObj["code"])
}

func (s *HandlerTestSuite) TestOptimizeDegradedStrategyWarns() {
	pool := testPool()
	for i := range pool {
		pool[i].VarianceProxy = nil
	}

	w := s.postJSON("/api/v1/optimize", gin.H{
		"players":  pool,
		"strategy": "safe",
	})
	s.Equal(http.StatusOK, w.Code)

	data := s.decode(w)["data"].(map[string]interface{})
	warnings := data["warnings"].([]interface{})
	s.Require().Len(warnings, 1)
	s.Contains(warnings[0].(string), "degraded")
}

func (s *HandlerTestSuite) TestValidateLineup() {
	pool := testPool()
	slots := []gin.H{
		{"slot": "QB", "player": pool[0]},
		{"slot": "RB1", "player": pool[2]},
		{"slot": "RB2", "player": pool[3]},
		{"slot": "WR1", "player": pool[6]},
		{"slot": "WR2", "player": pool[7]},
		{"slot": "WR3", "player": pool[8]},
		{"slot": "TE", "player": pool[11]},
		{"slot": "FLEX", "player": pool[4]},
		{"slot": "DST", "player": pool[13]},
	}

	w := s.postJSON("/api/v1/optimize/validate", gin.H{"slots": slots})
	s.Equal(http.StatusOK, w.Code)

	data := s.decode(w)["data"].(map[string]interface{})
	s.Equal(true, data["feasible"])
	s.Empty(data["violations"])

	// Same player twice is rejected with a named violation
	slots[7] = gin.H{"slot": "FLEX", "player": pool[2]}
	w = s.postJSON("/api/v1/optimize/validate", gin.H{"slots": slots})
	s.Equal(http.StatusOK, w.Code)

	data = s.decode(w)["data"].(map[string]interface{})
	s.Equal(false, data["feasible"])
	violations := data["violations"].([]interface{})
	s.Require().NotEmpty(violations)
	s.Contains(violations[0].(string), "appears in slots")
}

func (s *HandlerTestSuite) TestGenerateRunLifecycle() {
	w := s.postJSON("/api/v1/optimize/generate", gin.H{
		"players":     testPool(),
		"strategy":    "value",
		"count":       3,
		"max_overlap": 8,
	})
	s.Require().Equal(http.StatusAccepted, w.Code)

	data := s.decode(w)["data"].(map[string]interface{})
	runID := data["run_id"].(string)
	s.Require().NotEmpty(runID)
	s.Equal("/ws/runs/"+runID, data["websocket"])

	parsed, err := uuid.Parse(runID)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		var run models.OptimizationRun
		if err := s.db.First(&run, "id = ?", parsed).Error; err != nil {
			return false
		}
		return run.IsTerminal()
	}, 10*time.Second, 50*time.Millisecond, "run should finish")

	var run models.OptimizationRun
	s.Require().NoError(s.db.First(&run, "id = ?", parsed).Error)
	s.Equal(models.RunStatusCompleted, run.Status)
	s.Equal(3, run.BuiltCount)
	s.Equal(0, run.SkippedCount)
	s.NotNil(run.CompletedAt)

	// Saved lineups land just after the terminal status flips
	s.Eventually(func() bool {
		var n int64
		s.db.Model(&models.SavedLineup{}).Where("run_id = ?", parsed).Count(&n)
		return n == 3
	}, 5*time.Second, 50*time.Millisecond, "saved lineups should persist")

	var saved []models.SavedLineup
	s.Require().NoError(s.db.Where("run_id = ?", parsed).Order("position ASC").Find(&saved).Error)
	s.Len(saved, 3)
	s.Equal(1, saved[0].Position)
	s.LessOrEqual(saved[0].TotalSalary, 50000)

	// Fetch through the API
	w = s.get("/api/v1/runs/" + runID)
	s.Equal(http.StatusOK, w.Code)
	runData := s.decode(w)["data"].(map[string]interface{})
	s.Equal("completed", runData["status"])

	// Export as CSV
	w = s.get("/api/v1/runs/" + runID + "/export")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("text/csv", w.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	s.Require().Len(lines, 4)
	s.Equal("QB,RB,RB,WR,WR,WR,TE,FLEX,DST", strings.TrimSpace(lines[0]))

	// List endpoint sees the run
	w = s.get("/api/v1/runs?status=completed")
	s.Equal(http.StatusOK, w.Code)
	listResponse := s.decode(w)
	runs := listResponse["data"].([]interface{})
	s.Len(runs, 1)
}

func (s *HandlerTestSuite) TestGenerateRejectsOversizedBatch() {
	w := s.postJSON("/api/v1/optimize/generate", gin.H{
		"players": testPool(),
		"count":   151,
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerTestSuite) TestRunNotFound() {
	w := s.get("/api/v1/runs/" + uuid.NewString())
	s.Equal(http.StatusNotFound, w.Code)

	w = s.get("/api/v1/runs/not-a-uuid")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerTestSuite) TestExportRequiresCompletedRun() {
	run := &models.OptimizationRun{
		ID:             uuid.New(),
		Status:         models.RunStatusFailed,
		Strategy:       "value",
		RequestedCount: 5,
		Error:          "pool too thin",
	}
	s.Require().NoError(s.db.Create(run).Error)

	w := s.get("/api/v1/runs/" + run.ID.String() + "/export")
	s.Equal(http.StatusConflict, w.Code)
}

func (s *HandlerTestSuite) importSlate() uint {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "DKSalaries.csv")
	s.Require().NoError(err)
	_, err = part.Write([]byte(slateCSV))
	s.Require().NoError(err)
	s.Require().NoError(writer.WriteField("name", "Week 1 Main"))
	s.Require().NoError(writer.Close())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/slates/import", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.router.ServeHTTP(w, req)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	data := s.decode(w)["data"].(map[string]interface{})
	s.Equal(float64(16), data["imported"])
	s.Equal(float64(1), data["skipped"])

	slate := data["slate"].(map[string]interface{})
	return uint(slate["id"].(float64))
}

func (s *HandlerTestSuite) TestImportSlateFlow() {
	slateID := s.importSlate()

	var count int64
	s.db.Model(&models.SlatePlayer{}).Where("slate_id = ?", slateID).Count(&count)
	s.Equal(int64(16), count)

	// Listing includes the new slate
	w := s.get("/api/v1/slates")
	s.Equal(http.StatusOK, w.Code)
	slates := s.decode(w)["data"].([]interface{})
	s.Len(slates, 1)

	// Player browse with a quantile trim reports thresholds
	w = s.get("/api/v1/slates/" + strconv.Itoa(int(slateID)) + "/players?quantile=0.5")
	s.Equal(http.StatusOK, w.Code)
	data := s.decode(w)["data"].(map[string]interface{})
	s.NotEmpty(data["thresholds"])
	s.NotEmpty(data["players"])

	// The persisted pool feeds optimization by reference
	w = s.postJSON("/api/v1/optimize", gin.H{"slate_id": slateID})
	s.Equal(http.StatusOK, w.Code, w.Body.String())
	optData := s.decode(w)["data"].(map[string]interface{})
	lineup := optData["lineup"].(map[string]interface{})
	s.Len(lineup["slots"].([]interface{}), 9)

	// A requested quantile trims the pool before the solve
	w = s.postJSON("/api/v1/optimize", gin.H{"slate_id": slateID, "quantile": 0.5})
	s.Equal(http.StatusOK, w.Code, w.Body.String())
	optData = s.decode(w)["data"].(map[string]interface{})
	lineup = optData["lineup"].(map[string]interface{})
	s.Len(lineup["slots"].([]interface{}), 9)

	w = s.postJSON("/api/v1/optimize", gin.H{"slate_id": slateID, "quantile": 1.5})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerTestSuite) TestDeleteSlateCascades() {
	slateID := s.importSlate()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/v1/slates/"+strconv.Itoa(int(slateID)), nil)
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)

	var slateCount, playerCount int64
	s.db.Model(&models.Slate{}).Count(&slateCount)
	s.db.Model(&models.SlatePlayer{}).Count(&playerCount)
	s.Equal(int64(0), slateCount)
	s.Equal(int64(0), playerCount)
}

func (s *HandlerTestSuite) TestImportRejectsMissingFile() {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	s.Require().NoError(writer.WriteField("name", "empty"))
	s.Require().NoError(writer.Close())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/slates/import", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
