package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4243"`

	// Camptocamp-API (Routen und Begehungen)
	C2CBaseURL        string `envconfig:"C2C_BASE_URL" default:"https://api.camptocamp.org"`
	C2CResultsPerPage int    `envconfig:"C2C_RESULTS_PER_PAGE" default:"100"`
	C2CMaxRetries     int    `envconfig:"C2C_MAX_RETRIES" default:"3"`
	C2CBackoffSeconds int    `envconfig:"C2C_BACKOFF_SECONDS" default:"1"`
	C2CActivities     string `envconfig:"C2C_ACTIVITIES" default:"ice_climbing,snow_ice_mixed,mountain_climbing"`
	C2CCountryID      uint   `envconfig:"C2C_COUNTRY_ID" default:"14274"`

	// Anzahl paralleler Worker pro Seite; 1 bedeutet sequentiell.
	WorkerCount   int    `envconfig:"WORKER_COUNT" default:"1"`
	ParallelModes string `envconfig:"PARALLEL_MODES" default:"init"`

	// Inkrementelle Fenster für den Update-Modus
	WindowMarginDays    int `envconfig:"WINDOW_MARGIN_DAYS" default:"7"`
	SkipSetLookbackDays int `envconfig:"SKIPSET_LOOKBACK_DAYS" default:"30"`

	// Météo-France-API
	MFBaseURL          string `envconfig:"MF_BASE_URL" default:"https://public-api.meteofrance.fr/public/DPClim/v1"`
	MFAPIKey           string `envconfig:"MF_API_KEY" required:"true"`
	MFCadence          string `envconfig:"MF_CADENCE" default:"quotidienne"`
	MFRegionMin        int    `envconfig:"MF_REGION_MIN" default:"1"`
	MFRegionMax        int    `envconfig:"MF_REGION_MAX" default:"95"`
	MFExcludedStation  string `envconfig:"MF_EXCLUDED_STATION" default:"73187403"`
	MFPollSeconds      int    `envconfig:"MF_POLL_SECONDS" default:"5"`
	MFPollTimeoutMin   int    `envconfig:"MF_POLL_TIMEOUT_MINUTES" default:"30"`
	MFMaxChunkDays     int    `envconfig:"MF_MAX_CHUNK_DAYS" default:"366"`
	MFStationPauseSecs int    `envconfig:"MF_STATION_PAUSE_SECONDS" default:"1"`

	// Stationszuordnung
	AttributionRadiusKm float64 `envconfig:"ATTRIBUTION_RADIUS_KM" default:"20"`
	AttributionKeep     int     `envconfig:"ATTRIBUTION_KEEP" default:"10"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	// S3-Ablage für kombinierte Zeitreihen
	S3Key    string `envconfig:"TIMESERIES_S3_KEY" required:"true"`
	S3Secret string `envconfig:"TIMESERIES_S3_SECRET" required:"true"`
	S3URL    string `envconfig:"TIMESERIES_S3_URL" required:"true"`
	S3Region string `envconfig:"TIMESERIES_S3_REGION" required:"true"`
	S3Bucket string `envconfig:"TIMESERIES_S3_BUCKET" required:"true"`

	APISecretKey string `envconfig:"API_SECRET_KEY"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Activities gibt die konfigurierten Aktivitätskategorien als Slice zurück.
func (c *Config) Activities() []string {
	var acts []string
	for _, a := range strings.Split(c.C2CActivities, ",") {
		if a = strings.TrimSpace(a); a != "" {
			acts = append(acts, a)
		}
	}
	return acts
}

// ParallelFor entscheidet, ob der gegebene Modus parallel ausgeführt wird.
func (c *Config) ParallelFor(mode string) bool {
	for _, m := range strings.Split(c.ParallelModes, ",") {
		if strings.TrimSpace(m) == mode {
			return true
		}
	}
	return false
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
