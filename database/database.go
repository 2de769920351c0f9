package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"app-boekhouding/config"
	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// Connect opens the Postgres connection from the configuration.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormLogLevel := logger.Warn
	if cfg.Environment == "development" {
		gormLogLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	utils.Logger().Info("database connection established")
	return db, nil
}

// Migrate creates or updates the schema for all models.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Account{},
		&models.VatCode{},
		&models.Party{},
		&models.JournalEntry{},
		&models.JournalLine{},
		&models.OpenItem{},
		&models.OpenItemAllocation{},
		&models.FixedAsset{},
		&models.DepreciationSchedule{},
		&models.Period{},
		&models.PeriodSnapshot{},
		&models.PeriodAuditLog{},
		&models.Issue{},
		&models.ValidationRun{},
		&models.BankAccount{},
		&models.BankTransaction{},
		&models.MatchProposal{},
		&models.ReconciliationAction{},
		&models.TenantSequence{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	utils.Logger().Info("database schema migrated")
	return nil
}
