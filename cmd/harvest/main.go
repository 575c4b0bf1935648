package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ice-scout/config"
	"ice-scout/providers/c2c"
	"ice-scout/services"
	"ice-scout/storage"
)

func main() {
	mode := flag.String("mode", "update", "Harvest mode: 'init' (full route harvest) or 'update' (outing window harvest)")
	flag.Parse()

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	if *mode != "init" && *mode != "update" {
		logging.Error("Invalid mode", zap.String("mode", *mode))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Error("Config load error", zap.Error(err))
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Error("Failed to connect to database", zap.Error(err))
		os.Exit(1)
	}

	store := storage.NewStore(db, logging)
	if err := store.AutoMigrate(); err != nil {
		logging.Error("Auto-migration failed", zap.Error(err))
		os.Exit(1)
	}

	client := c2c.NewClient(cfg, logging)
	service := services.NewHarvestService(cfg, store, client, logging)

	logging.Info("Starting harvest", zap.String("mode", *mode))
	summary, err := service.Run(context.Background(), *mode)
	if err != nil {
		logging.Error("Harvest failed", zap.Error(err))
		os.Exit(1)
	}

	for activity, s := range summary {
		logging.Info("Harvest summary",
			zap.String("activity", activity),
			zap.Int("scraped", s.Scraped),
			zap.Int("written", s.Written),
			zap.Int("skipped", s.Skipped),
			zap.Int("conflicts", s.Conflicts),
			zap.Int("errored", s.Errored),
		)
	}
}
