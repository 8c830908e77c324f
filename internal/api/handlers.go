package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"landmatch/server/config"
	"landmatch/server/internal/database"
	"landmatch/server/internal/extraction"
	"landmatch/server/internal/matching"
	"landmatch/server/internal/models"
	"landmatch/server/internal/queue"
	"landmatch/server/internal/scheduler"
	"landmatch/server/internal/telegram"
)

// Options carries the services shared with the rest of the server. Nil members
// get a default built on the handler's database.
type Options struct {
	Engine     *matching.Engine
	AreaGroups *config.AreaGroups
	Heuristics *extraction.Heuristics
	Queue      *queue.PropertyQueue
	Scheduler  *scheduler.Scheduler
	Telegram   *telegram.Service
}

type Handler struct {
	db              *database.Database
	logger          *logrus.Logger
	engine          *matching.Engine
	areaGroups      *config.AreaGroups
	heuristics      extraction.Heuristics
	queue           *queue.PropertyQueue
	scheduler       *scheduler.Scheduler
	telegramService *telegram.Service
}

type AssignRequest struct {
	AssignedTo string `json:"assigned_to" binding:"required"`
}

func NewHandler(db *database.Database, logger *logrus.Logger, opts Options) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	h := &Handler{
		db:              db,
		logger:          logger,
		engine:          opts.Engine,
		areaGroups:      opts.AreaGroups,
		heuristics:      extraction.DefaultHeuristics(),
		queue:           opts.Queue,
		scheduler:       opts.Scheduler,
		telegramService: opts.Telegram,
	}
	if opts.Heuristics != nil {
		h.heuristics = *opts.Heuristics
	}
	if h.engine == nil {
		var engineOpts []matching.Option
		if h.areaGroups != nil {
			engineOpts = append(engineOpts, matching.WithAreaResolver(h.areaGroups))
		}
		h.engine = matching.NewEngine(matching.DefaultWeights(), engineOpts...)
	}
	if h.telegramService == nil {
		h.telegramService = telegram.NewService(logger)
		h.telegramService.SetDatabase(db)

		// Load existing Telegram configuration
		if cfg, err := db.GetTelegramConfig(); err == nil && cfg != nil {
			h.telegramService.UpdateConfig(cfg)
		}
	}
	if h.scheduler == nil {
		h.scheduler = scheduler.NewScheduler(db, h.engine, h.telegramService, 0, logger)
	}
	return h
}

// GetProperties lists listings, optionally filtered by ?status= and ?area=
func (h *Handler) GetProperties(c *gin.Context) {
	status := models.PropertyStatus(c.Query("status"))
	switch status {
	case "", models.StatusAvailable, models.StatusNegotiating, models.StatusSold, models.StatusWithdrawn:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	properties, err := h.db.ListProperties(status, c.Query("area"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get properties"})
		return
	}

	c.JSON(http.StatusOK, properties)
}

func (h *Handler) GetProperty(c *gin.Context) {
	property, err := h.db.GetProperty(c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}

	c.JSON(http.StatusOK, property)
}

// CreateProperties ingests a batch of listings. With a queue the batch is stored
// and matched asynchronously.
func (h *Handler) CreateProperties(c *gin.Context) {
	var properties []*models.LandProperty
	if err := c.ShouldBindJSON(&properties); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(properties) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No properties given"})
		return
	}
	for i, p := range properties {
		if msg := validateProperty(p); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg, "index": i})
			return
		}
	}

	if h.queue != nil {
		err := h.queue.Push(properties)
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingestion queue is full, retry later"})
			return
		case err != nil:
			h.logger.WithError(err).Error("Failed to queue properties")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingestion is not available"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": len(properties)})
		return
	}

	if err := h.db.SaveProperties(properties); err != nil {
		h.logger.WithError(err).Error("Failed to save properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save properties"})
		return
	}
	c.JSON(http.StatusCreated, properties)
}

func validateProperty(p *models.LandProperty) string {
	if p == nil {
		return "Property is empty"
	}
	if strings.TrimSpace(p.Area) == "" && strings.TrimSpace(p.Address) == "" {
		return "Property needs an area or an address"
	}
	if p.LandArea < 0 || p.Price < 0 || p.StationDistance < 0 {
		return "Land area, price and station distance must not be negative"
	}
	switch p.Source {
	case "", models.PropertySourceReins, models.PropertySourceSuumo, models.PropertySourceAthome,
		models.PropertySourceManual, models.PropertySourceOther:
	default:
		return "Unknown property source"
	}
	switch p.Status {
	case "", models.StatusAvailable, models.StatusNegotiating, models.StatusSold, models.StatusWithdrawn:
	default:
		return "Unknown property status"
	}
	return ""
}

// MatchProperty scores one property for one customer
func (h *Handler) MatchProperty(c *gin.Context) {
	property, err := h.db.GetProperty(c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}

	conditions, err := h.db.GetOrCreateConditions(c.Param("customerId"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get conditions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conditions"})
		return
	}

	c.JSON(http.StatusOK, h.engine.Calculate(conditions, property))
}

// GetCustomerMatches ranks available listings for one customer. ?min_score=
// overrides the medium threshold.
func (h *Handler) GetCustomerMatches(c *gin.Context) {
	minScore := h.engine.Weights().MediumThreshold
	if v := c.Query("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_score must be between 0 and 100"})
			return
		}
		minScore = n
	}

	conditions, err := h.db.GetOrCreateConditions(c.Param("customerId"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get conditions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conditions"})
		return
	}
	properties, err := h.db.ListAvailableProperties()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get properties"})
		return
	}

	c.JSON(http.StatusOK, h.engine.MatchCustomer(conditions, properties, minScore))
}

// RunMatching runs a full batch match now
func (h *Handler) RunMatching(c *gin.Context) {
	summary, err := h.scheduler.RunMatching(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to run matching")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run matching"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetMatches lists cached results, optionally filtered by ?level= and ?customer_id=
func (h *Handler) GetMatches(c *gin.Context) {
	level := models.AlertLevel(c.Query("level"))
	switch level {
	case "", models.AlertHigh, models.AlertMedium, models.AlertLow:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "level must be high, medium or low"})
		return
	}

	matches, err := h.db.ListMatches(level, c.Query("customer_id"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get matches")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get matches"})
		return
	}
	c.JSON(http.StatusOK, matches)
}

func (h *Handler) AssignMatch(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid match id"})
		return
	}

	var request AssignRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	match, err := h.db.AssignMatch(uint(id), strings.TrimSpace(request.AssignedTo))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to assign match")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign match"})
		return
	}
	c.JSON(http.StatusOK, match)
}

// GetTelegramConfig returns the current Telegram configuration
func (h *Handler) GetTelegramConfig(c *gin.Context) {
	cfg, err := h.db.GetTelegramConfig()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get Telegram config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get Telegram config"})
		return
	}

	if cfg == nil {
		c.JSON(http.StatusOK, gin.H{
			"is_enabled": false,
			"chat_id":    "",
			"bot_token":  "",
			"min_level":  models.AlertHigh,
		})
		return
	}

	// Don't send the full bot token back to the client
	if len(cfg.BotToken) > 4 {
		cfg.BotToken = "••••" + cfg.BotToken[len(cfg.BotToken)-4:]
	}
	c.JSON(http.StatusOK, cfg)
}

// UpdateTelegramConfig validates the new configuration with a test message
// before saving it.
func (h *Handler) UpdateTelegramConfig(c *gin.Context) {
	var request models.TelegramConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Error("Failed to bind Telegram config request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if len(request.BotToken) < 20 || !strings.Contains(request.BotToken, ":") {
		h.logger.Error("Invalid bot token format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot token format. Please check your bot token from @BotFather"})
		return
	}

	if request.IsEnabled {
		testService := h.telegramService.WithConfig(&models.TelegramConfig{
			BotToken:  request.BotToken,
			ChatID:    request.ChatID,
			IsEnabled: true,
		})
		testMessage := "🔔 土地マッチング通知のテストです\n\nこのメッセージが届いていれば設定は正常です。"
		if err := testService.SendMessage(c.Request.Context(), testMessage); err != nil {
			h.logger.WithError(err).Error("Failed to send test message")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cfg, err := h.db.UpdateTelegramConfig(&request)
	if err != nil {
		h.logger.WithError(err).Error("Failed to update Telegram config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save configuration to database"})
		return
	}
	h.telegramService.UpdateConfig(cfg)

	c.JSON(http.StatusOK, gin.H{"message": "Telegram configuration updated successfully"})
}

// TestTelegramConfig sends a sample match alert with the saved configuration
func (h *Handler) TestTelegramConfig(c *gin.Context) {
	cfg, err := h.db.GetTelegramConfig()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get Telegram config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get Telegram configuration"})
		return
	}

	if cfg == nil || !cfg.IsEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Telegram is not configured or is disabled"})
		return
	}

	station := 8
	sample := &models.LandProperty{
		ID:              "sample",
		Name:            "サンプル分譲地",
		Address:         "大阪府豊中市新千里東町1丁目",
		Area:            "豊中市",
		LandArea:        50,
		Price:           2000,
		NearestStation:  "千里中央",
		StationDistance: station,
		SourceURL:       "https://example.com/sample",
		Status:          models.StatusAvailable,
	}
	sample.ComputePricePerTsubo()

	conditions := models.NewDefaultLandConditions("sample-customer")
	conditions.DesiredAreas = []string{"豊中市"}
	maxPrice := 2500
	conditions.MaxPrice = &maxPrice
	conditions.StationDistance = &station

	result := h.engine.Calculate(conditions, sample)
	if err := h.telegramService.WithConfig(cfg).SendMessage(c.Request.Context(), h.telegramService.FormatMatch(result, sample)); err != nil {
		h.logger.WithError(err).Error("Failed to send test notification")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Test notification sent successfully"})
}
