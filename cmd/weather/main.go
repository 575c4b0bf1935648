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
	"ice-scout/providers/meteofrance"
	"ice-scout/services"
	"ice-scout/storage"
)

func main() {
	mode := flag.String("mode", "init", "Weather mode: 'init' (station metadata harvest) or 'update' (time series download)")
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
	if err := store.AutoMigrate(); err != nil {
		logging.Error("Auto-migration failed", zap.Error(err))
		os.Exit(1)
	}

	client := meteofrance.NewClient(cfg, logging)

	switch *mode {
	case "init":
		service := services.NewStationService(cfg, store, client, logging)
		logging.Info("Starting station metadata harvest")
		summary, err := service.HarvestMetadata(context.Background())
		if err != nil {
			logging.Error("Station harvest failed", zap.Error(err))
			os.Exit(1)
		}
		logging.Info("Station harvest summary",
			zap.Int("regions_scraped", summary.RegionsScraped),
			zap.Int("regions_skipped", summary.RegionsSkipped),
			zap.Int("stations_written", summary.StationsWritten),
			zap.Int("stations_skipped", summary.StationsSkipped),
		)
	case "update":
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Error("S3 client creation failed", zap.Error(err))
			os.Exit(1)
		}
		service := services.NewTimeSeriesService(cfg, store, client, s3Client, logging)
		logging.Info("Starting time series download for stations of interest")
		archived, err := service.RunForStationsOfInterest(context.Background())
		if err != nil {
			logging.Error("Time series download failed", zap.Error(err))
			os.Exit(1)
		}
		logging.Info("Time series download completed", zap.Int("stations_archived", archived))
	default:
		logging.Error("Invalid mode", zap.String("mode", *mode))
		os.Exit(1)
	}
}
