package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ice-scout/config"
	"ice-scout/geo"
	"ice-scout/models"
	"ice-scout/providers/c2c"
	"ice-scout/services"
	"ice-scout/storage"
)

var (
	outingsWrittenCounter prometheus.Counter
	attributionRunCounter prometheus.Counter
)

func init() {
	outingsWrittenCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outings_written_total",
			Help: "Total number of outings written by scheduled harvest runs.",
		},
	)
	attributionRunCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attribution_runs_total",
			Help: "Total number of completed station attribution runs.",
		},
	)
	prometheus.MustRegister(outingsWrittenCounter, attributionRunCounter)
}

// scheduledRun ist das Ergebnis des letzten Cron-Durchlaufs, abrufbar über
// die API.
type scheduledRun struct {
	StartedAt   time.Time                    `json:"started_at"`
	FinishedAt  time.Time                    `json:"finished_at"`
	Harvest     services.HarvestSummary      `json:"harvest,omitempty"`
	Attribution *services.AttributionSummary `json:"attribution,omitempty"`
	Error       string                       `json:"error,omitempty"`
}

type runTracker struct {
	mu   sync.Mutex
	last *scheduledRun
}

func (rt *runTracker) record(run *scheduledRun) {
	rt.mu.Lock()
	rt.last = run
	rt.mu.Unlock()
}

func (rt *runTracker) lastRun() *scheduledRun {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.last
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	store := storage.NewStore(db, logging)
	logging.Info("Running database auto-migration...")
	if err := store.AutoMigrate(); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	c2cClient := c2c.NewClient(cfg, logging)

	harvestService := services.NewHarvestService(cfg, store, c2cClient, logging)
	attributionService := services.NewAttributionService(cfg, store, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tracker := &runTracker{}

	setupRouteRoutes(router, db, logging)
	setupOutingRoutes(router, db, logging)
	setupStationRoutes(router, db, store, logging)
	setupRunRoutes(router, tracker)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		run := &scheduledRun{StartedAt: time.Now()}
		defer func() {
			run.FinishedAt = time.Now()
			tracker.record(run)
		}()

		logging.Info("Running scheduled update harvest...")
		summary, err := harvestService.Run(context.Background(), "update")
		if err != nil {
			run.Error = err.Error()
			logging.Error("Scheduled harvest failed", zap.Error(err))
			return
		}
		run.Harvest = summary

		written := 0
		for _, act := range summary {
			written += act.Written
		}
		outingsWrittenCounter.Add(float64(written))
		logging.Info("Scheduled harvest completed", zap.Int("written", written))

		attribution, err := attributionService.Run(context.Background(), "update", cfg.C2CCountryID)
		if err != nil {
			run.Error = err.Error()
			logging.Error("Scheduled attribution failed", zap.Error(err))
			return
		}
		run.Attribution = &attribution
		attributionRunCounter.Inc()
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupRunRoutes(router *gin.Engine, tracker *runTracker) {
	router.GET("/runs/last", func(c *gin.Context) {
		run := tracker.lastRun()
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no scheduled run yet"})
			return
		}
		c.JSON(http.StatusOK, run)
	})
}

func setupRouteRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/routes")

	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Route{})
		if act := c.Query("activity"); act != "" {
			switch act {
			case "ice_climbing":
				query = query.Where("ice_climbing = ?", true)
			case "snow_ice_mixed":
				query = query.Where("snow_ice_mixed = ?", true)
			case "mountain_climbing":
				query = query.Where("mountain_climbing = ?", true)
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown activity"})
				return
			}
		}
		if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil && limit > 0 {
			query = query.Limit(limit)
		}

		var routes []models.Route
		if err := query.Order("route_id").Find(&routes).Error; err != nil {
			log.Error("Database query for routes failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, routes)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var route models.Route
		err := db.Preload("Orientations").Preload("Countries").Preload("Outings").Preload("Stations").
			First(&route, "route_id = ?", id).Error
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
			return
		}
		c.JSON(http.StatusOK, route)
	})
}

func setupOutingRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/outings")

	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Outing{})
		if from := c.Query("from"); from != "" {
			query = query.Where("date >= ?", from)
		}
		if to := c.Query("to"); to != "" {
			query = query.Where("date <= ?", to)
		}
		if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil && limit > 0 {
			query = query.Limit(limit)
		}

		var outings []models.Outing
		if err := query.Order("date desc").Find(&outings).Error; err != nil {
			log.Error("Database query for outings failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, outings)
	})
}

func setupStationRoutes(router *gin.Engine, db *gorm.DB, store *storage.Store, log *zap.Logger) {
	rg := router.Group("/stations")

	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.WeatherStation{})
		if c.Query("of_interest") == "true" {
			query = query.Where("of_interest = ?", true)
		}

		var stations []models.WeatherStation
		if err := query.Order("station_id").Find(&stations).Error; err != nil {
			log.Error("Database query for stations failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stations)
	})

	// Stationen im Umkreis einer Koordinate, über den Bounding-Box-Vorfilter.
	rg.GET("/nearby", func(c *gin.Context) {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
		if errLat != nil || errLon != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
			return
		}
		radius, err := strconv.ParseFloat(c.DefaultQuery("radius_km", "20"), 64)
		if err != nil || radius <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius_km"})
			return
		}

		minLat, maxLat, minLon, maxLon := geo.BoundingBox(lat, lon, radius)
		stations, err := store.StationsInBox(minLat, maxLat, minLon, maxLon)
		if err != nil {
			log.Error("Database query for nearby stations failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stations)
	})
}
