package main

import (
	"os"

	"github.com/autolog/autoanalysis/internal/config"
	"github.com/autolog/autoanalysis/internal/db"
	"github.com/autolog/autoanalysis/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("AUTOANALYSIS_CONFIG"))
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{"error": err.Error()})
	}
	logger.Initialize(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	conn, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Running database migrations...", nil)
	if err := db.AutoMigrate(conn); err != nil {
		logger.Fatal("Database migration failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Database migrations completed successfully", nil)
}
