package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
)

// Connect opens the PostgreSQL database behind dsn.
func Connect(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Database connected successfully", nil)
	return conn, nil
}

// Tables lists the models managed by AutoMigrate, parents first.
func Tables() []interface{} {
	return []interface{}{
		&models.Launch{},
		&models.TestItem{},
		&models.Issue{},
		&models.Log{},
		&models.ItemAttribute{},
		&models.ProjectAttribute{},
		&models.PatternTemplate{},
		&models.PatternMatch{},
		&models.Cluster{},
		&models.ClusterTestItem{},
		&models.Job{},
		&models.Activity{},
	}
}

// AutoMigrate runs database migrations
func AutoMigrate(conn *gorm.DB) error {
	for _, table := range Tables() {
		if err := conn.AutoMigrate(table); err != nil {
			return fmt.Errorf("migration of %T failed: %w", table, err)
		}
		logger.Debug("Table migrated", map[string]interface{}{"model": fmt.Sprintf("%T", table)})
	}

	logger.Info("All database migrations completed successfully", nil)
	return nil
}

// Ping reports whether the database answers.
func Ping(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
