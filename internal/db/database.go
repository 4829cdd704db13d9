package db

import (
	"fmt"
	"log"
	"time"

	"proof-host/internal/config"
	"proof-host/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres and migrates the task schema
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	log.Printf("Connecting to database (driver=%s)", cfg.Driver)
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Println("✅ Database connected successfully")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	}
}

// Migrate runs the schema migration followed by pending data migrations
func Migrate(gdb *gorm.DB) error {
	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := gdb.AutoMigrate(&models.ProofTask{}); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	if err := RunDataMigrations(gdb); err != nil {
		return fmt.Errorf("data migrations failed: %w", err)
	}

	log.Println("✅ Database schema migrated successfully")
	return nil
}
