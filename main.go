package main

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"clinic-management-server/internal/clock"
	"clinic-management-server/internal/config"
	"clinic-management-server/internal/jobs"
	"clinic-management-server/internal/logger"
	"clinic-management-server/internal/messaging"
	"clinic-management-server/internal/models"
	"clinic-management-server/internal/queue"
	"clinic-management-server/internal/routes"
	"clinic-management-server/internal/scheduling"
	"clinic-management-server/internal/utils"
	"clinic-management-server/internal/ws"
)

func main() {
	// A missing .env file is fine in containerized deployments; the
	// environment is already populated there.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("error loading config: %v", err))
	}

	log := logger.New(cfg.Environment)

	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	clk := clock.System{}
	businessLocation := utils.Location(cfg.DefaultTimezone, time.UTC)

	// Realtime layer
	hub := ws.NewHub(log)

	// Core services
	messages := messaging.NewService(db, clk, log, hub)
	queueSvc := queue.NewService(db, clk, log, messages, cfg.AvgConsultationMinutes)
	scheduler := scheduling.NewService(db, clk, log, businessLocation)
	scheduler.Queue = queueSvc

	wsHandler := ws.NewHandler(hub, db, cfg, clk, log, messages)

	// Background jobs
	runner := jobs.NewRunner(db, clk, log, time.Duration(cfg.NoShowGraceMinutes)*time.Minute)
	if err := runner.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start background jobs")
	}
	defer runner.Stop()

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Dependencies{
		DB:        db,
		Cfg:       cfg,
		Clock:     clk,
		Scheduler: scheduler,
		Queue:     queueSvc,
		Messages:  messages,
		WS:        wsHandler,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Info().Str("addr", addr).Str("env", cfg.Environment).Msg("server starting")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
