package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"landmatch/server/config"
	"landmatch/server/internal/api"
	"landmatch/server/internal/database"
	"landmatch/server/internal/extraction"
	"landmatch/server/internal/matching"
	"landmatch/server/internal/processor"
	"landmatch/server/internal/queue"
	"landmatch/server/internal/scheduler"
	"landmatch/server/internal/telegram"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Server.LogLevel).Warn("Unknown log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Using database at: %s", cfg.Server.DatabasePath)
	db, err := database.NewDatabase(cfg.Server.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	areaGroups := config.NewAreaGroups(cfg.Server.AreaGroupsPath)
	if err := areaGroups.Load(); err != nil {
		logger.WithError(err).Fatal("Failed to load area groups")
	}
	logger.WithField("groups", len(areaGroups.List())).Info("Loaded area groups")

	engine := matching.NewEngine(matching.WeightsFromConfig(cfg), matching.WithAreaResolver(areaGroups))
	heuristics := extraction.Heuristics{
		LandBudgetRatio:   cfg.Extraction.LandBudgetRatio,
		TsuboPerMember:    cfg.Extraction.TsuboPerMember,
		MinFamilyLandArea: cfg.Extraction.MinFamilyLandArea,
	}

	telegramService := telegram.NewService(logger)
	telegramService.SetDatabase(db)
	if tgConfig, err := db.GetTelegramConfig(); err != nil {
		logger.WithError(err).Error("Failed to load Telegram config")
	} else if tgConfig != nil {
		telegramService.UpdateConfig(tgConfig)
	}

	// Listings posted to the API are stored and matched in the background
	propertyQueue := queue.NewPropertyQueue(cfg.BatchProcessing.MaxBatchSize, logger)
	batchProcessor := processor.NewBatchProcessor(db.GetDB(), db, engine, propertyQueue, cfg, logger)
	batchProcessor.SetDispatcher(telegramService)
	batchProcessor.Start()
	propertyQueue.Start()

	matchScheduler := scheduler.NewScheduler(db, engine, telegramService,
		time.Duration(cfg.Matching.ScheduleIntervalMinutes)*time.Minute, logger)
	matchScheduler.Start()

	handler := api.NewHandler(db, logger, api.Options{
		Engine:     engine,
		AreaGroups: areaGroups,
		Heuristics: &heuristics,
		Queue:      propertyQueue,
		Scheduler:  matchScheduler,
		Telegram:   telegramService,
	})

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	matchScheduler.Stop()
	if err := propertyQueue.Close(); err != nil {
		logger.WithError(err).Error("Failed to close property queue")
	}
	batchProcessor.Stop()
}
