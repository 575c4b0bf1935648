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
	"ice-scout/services"
	"ice-scout/storage"
)

func main() {
	mode := flag.String("mode", "update", "Attribution mode: 'update' (only routes without stations) or 'reset' (recompute all)")
	flag.Parse()

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

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
	service := services.NewAttributionService(cfg, store, logging)

	logging.Info("Starting station attribution", zap.String("mode", *mode))
	summary, err := service.Run(context.Background(), *mode, cfg.C2CCountryID)
	if err != nil {
		logging.Error("Attribution failed", zap.Error(err))
		os.Exit(1)
	}

	logging.Info("Attribution summary",
		zap.Int("processed", summary.Processed),
		zap.Int("updated", summary.Updated),
		zap.Int("uncovered", summary.Uncovered),
	)
}
