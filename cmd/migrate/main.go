package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"github.com/twalsh/matchup-edge/internal/models"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|seed]")
	}

	// Load .env before viper reads the environment
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logrus.Fatal("DATABASE_URL must be set to run migrations")
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		if err := runMigrations(db); err != nil {
			logrus.Fatalf("Failed to run migrations: %v", err)
		}
		logrus.Info("Migrations completed successfully")

	case "down":
		if err := dropTables(db); err != nil {
			logrus.Fatalf("Failed to drop tables: %v", err)
		}
		logrus.Info("Tables dropped successfully")

	case "seed":
		if err := seedData(db); err != nil {
			logrus.Fatalf("Failed to seed data: %v", err)
		}
		logrus.Info("Data seeded successfully")

	default:
		log.Fatalf("Unknown command: %s", os.Args[1])
	}
}

func runMigrations(db *database.DB) error {
	// uuid-ossp backs the uuid primary keys on postgres
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
			return fmt.Errorf("failed to create UUID extension: %w", err)
		}
	}

	// Auto migrate all models
	if err := db.AutoMigrate(
		&models.TeamInfo{},
		&models.MetricDefinition{},
		&models.UploadRecord{},
		&models.PickSheet{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	// Create indexes the struct tags do not cover
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_metric_definitions_category ON metric_definitions(category)",
		"CREATE INDEX IF NOT EXISTS idx_upload_records_created_at ON upload_records(created_at DESC)",
	}
	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func dropTables(db *database.DB) error {
	tables := []string{
		"pick_sheets",
		"upload_records",
		"metric_definitions",
		"team_infos",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	return nil
}

func seedData(db *database.DB) error {
	// Seed team reference data, replacing on conflict so reruns stay clean
	teams := models.DefaultTeams()
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "abbreviation"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "conference", "division", "updated_at"}),
	}).Create(&teams).Error; err != nil {
		return fmt.Errorf("failed to seed teams: %w", err)
	}
	logrus.Infof("Seeded %d teams", len(teams))

	// Seed the metric glossary
	defs := models.DefaultMetricDefinitions()
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "definition", "aliases", "examples", "updated_at"}),
	}).Create(&defs).Error; err != nil {
		return fmt.Errorf("failed to seed metric definitions: %w", err)
	}
	logrus.Infof("Seeded %d glossary entries", len(defs))

	return nil
}
