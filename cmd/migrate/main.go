package main

import (
	"flag"
	"os"

	"app-boekhouding/config"
	"app-boekhouding/database"
	"app-boekhouding/utils"
)

func main() {
	seedTenant := flag.Uint("seed-tenant", 0, "seed the default chart of accounts and VAT codes for this tenant")
	flag.Parse()

	cfg := config.Load()
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)
	log := utils.Logger()

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		log.WithError(err).Error("migration failed")
		os.Exit(1)
	}

	if *seedTenant != 0 {
		if err := database.SeedTenant(db, *seedTenant); err != nil {
			log.WithError(err).Error("seeding failed")
			os.Exit(1)
		}
	}

	log.Info("migration completed")
}
