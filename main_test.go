package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ice-scout/config"
	"ice-scout/models"
	"ice-scout/storage"
)

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := storage.NewStore(db, zap.NewNop())
	require.NoError(t, store.AutoMigrate())

	router := gin.New()
	router.Use(apiKeyAuthMiddleware(cfg))
	setupRouteRoutes(router, db, zap.NewNop())
	setupOutingRoutes(router, db, zap.NewNop())
	setupStationRoutes(router, db, store, zap.NewNop())
	return router, store
}

func TestAPIKeyMiddleware(t *testing.T) {
	cfg := &config.Config{APISecretKey: "geheim"}
	router, _ := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/routes/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/routes/", nil)
	req.Header.Set("X-API-KEY", "falsch")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/routes/", nil)
	req.Header.Set("X-API-KEY", "geheim")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyMiddlewareDisabledWithoutKey(t *testing.T) {
	router, _ := newTestRouter(t, &config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/routes/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesEndpointFiltersByActivity(t *testing.T) {
	router, store := newTestRouter(t, &config.Config{})

	require.NoError(t, store.DB.Create(&models.Route{RouteID: 1, Name: "Eisfall", IceClimbing: true}).Error)
	require.NoError(t, store.DB.Create(&models.Route{RouteID: 2, Name: "Gipfel", MountainClimbing: true}).Error)

	req := httptest.NewRequest(http.MethodGet, "/routes/?activity=ice_climbing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Eisfall")
	assert.NotContains(t, w.Body.String(), "Gipfel")

	req = httptest.NewRequest(http.MethodGet, "/routes/?activity=base_jumping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouteDetailEndpoint(t *testing.T) {
	router, store := newTestRouter(t, &config.Config{})

	require.NoError(t, store.DB.Create(&models.Route{RouteID: 42, Name: "Cascade"}).Error)

	req := httptest.NewRequest(http.MethodGet, "/routes/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Cascade")

	req = httptest.NewRequest(http.MethodGet, "/routes/999", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutingsEndpointFiltersByDateWindow(t *testing.T) {
	router, store := newTestRouter(t, &config.Config{})

	require.NoError(t, store.DB.Create(&models.Outing{OutingID: 1, Date: "2026-01-10"}).Error)
	require.NoError(t, store.DB.Create(&models.Outing{OutingID: 2, Date: "2026-02-10"}).Error)

	req := httptest.NewRequest(http.MethodGet, "/outings/?from=2026-02-01", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2026-02-10")
	assert.NotContains(t, w.Body.String(), "2026-01-10")
}

func TestRunsLastEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	tracker := &runTracker{}
	setupRunRoutes(router, tracker)

	req := httptest.NewRequest(http.MethodGet, "/runs/last", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	tracker.record(&scheduledRun{Error: "boom"})
	req = httptest.NewRequest(http.MethodGet, "/runs/last", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
}

func TestStationsNearbyEndpoint(t *testing.T) {
	router, store := newTestRouter(t, &config.Config{})

	require.NoError(t, store.DB.Create(&models.WeatherStation{
		StationID: "73001001", Name: "AIGUEBELLE", Lat: 45.5, Lon: 6.5,
	}).Error)
	require.NoError(t, store.DB.Create(&models.WeatherStation{
		StationID: "97000001", Name: "REUNION", Lat: -21.1, Lon: 55.5,
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/stations/nearby?lat=45.5&lon=6.5&radius_km=20", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AIGUEBELLE")
	assert.NotContains(t, w.Body.String(), "REUNION")

	req = httptest.NewRequest(http.MethodGet, "/stations/nearby?lat=abc&lon=6.5", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
