package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ice-scout/config"
	"ice-scout/models"
	"ice-scout/providers/c2c"
	"ice-scout/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := storage.NewStore(db, zap.NewNop())
	require.NoError(t, store.AutoMigrate())
	return store
}

func newHarvestConfig(baseURL string) *config.Config {
	return &config.Config{
		C2CBaseURL:          baseURL,
		C2CResultsPerPage:   100,
		C2CMaxRetries:       3,
		C2CBackoffSeconds:   0,
		C2CActivities:       "ice_climbing",
		WorkerCount:         4,
		ParallelModes:       "init",
		WindowMarginDays:    7,
		SkipSetLookbackDays: 30,
	}
}

// fakeAPI bedient die Listen- und Detail-Endpunkte aus festen Antworten und
// zählt die Zugriffe pro Pfad.
type fakeAPI struct {
	mu        sync.Mutex
	hits      map[string]int
	responses map[string]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{hits: make(map[string]int), responses: make(map[string]string)}
}

// set registriert eine Antwort unter Pfad plus normalisierter Query.
func (f *fakeAPI) set(key, body string) {
	f.responses[key] = body
}

func (f *fakeAPI) key(r *http.Request) string {
	q := r.URL.Query()
	switch {
	case r.URL.Path == "/routes":
		return "routes?act=" + q.Get("act")
	case r.URL.Path == "/outings" && q.Get("r") != "":
		return "outings?r=" + q.Get("r")
	case r.URL.Path == "/outings":
		return "outings?act=" + q.Get("act")
	default:
		return r.URL.Path
	}
}

func (f *fakeAPI) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := f.key(r)
		f.mu.Lock()
		f.hits[key]++
		body, ok := f.responses[key]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)
	}))
}

func (f *fakeAPI) hitCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func listBody(total int, docs ...string) string {
	return fmt.Sprintf(`{"total": %d, "documents": [%s]}`, total, strings.Join(docs, ","))
}

func routeDoc(id int) string {
	return fmt.Sprintf(`{
		"document_id": %d,
		"geometry": {"geom": "{\"coordinates\": [6.9, 45.9]}"},
		"activities": ["ice_climbing"],
		"orientations": ["N"],
		"locales": [{"lang": "fr", "title": "Cascade %d"}],
		"areas": [{"document_id": 14274, "area_type": "country",
			"locales": [{"lang": "fr", "title": "France"}]}]
	}`, id, id)
}

func outingDoc(id int, date string, routeIDs ...int) string {
	var assoc []string
	for _, r := range routeIDs {
		assoc = append(assoc, fmt.Sprintf(`{"document_id": %d}`, r))
	}
	return fmt.Sprintf(`{
		"document_id": %d,
		"date_start": "%s",
		"condition_rating": "good",
		"associations": {"routes": [%s]}
	}`, id, date, strings.Join(assoc, ","))
}

func TestHarvestInitWritesRoutesWithOutings(t *testing.T) {
	api := newFakeAPI()
	api.set("routes?act=ice_climbing", listBody(2, `{"document_id": 101}`, `{"document_id": 102}`))
	api.set("/routes/101", routeDoc(101))
	api.set("/routes/102", routeDoc(102))
	api.set("outings?r=101", listBody(1, outingDoc(901, "2026-02-10", 101)))
	api.set("outings?r=102", listBody(0))
	server := api.server()
	defer server.Close()

	store := openTestStore(t)
	cfg := newHarvestConfig(server.URL)
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	summary, err := service.Run(context.Background(), "init")
	require.NoError(t, err)

	act := summary["ice_climbing"]
	require.NotNil(t, act)
	assert.Equal(t, 2, act.Scraped)
	assert.Equal(t, 2, act.Written)
	assert.Equal(t, 0, act.Skipped)
	assert.Equal(t, 0, act.Errored)

	var route models.Route
	err = store.DB.Preload("Outings").Preload("Countries").First(&route, "route_id = ?", 101).Error
	require.NoError(t, err)
	assert.Equal(t, "Cascade 101", route.Name)
	assert.True(t, route.IceClimbing)
	require.Len(t, route.Outings, 1)
	assert.Equal(t, 901, route.Outings[0].OutingID)
	assert.Equal(t, "2026-02-10", route.Outings[0].Date)
	require.Len(t, route.Countries, 1)
	assert.Equal(t, "France", route.Countries[0].CountryName)
}

func TestHarvestInitSkipsKnownRoutes(t *testing.T) {
	api := newFakeAPI()
	api.set("routes?act=ice_climbing", listBody(2, `{"document_id": 101}`, `{"document_id": 102}`))
	api.set("/routes/101", routeDoc(101))
	api.set("/routes/102", routeDoc(102))
	api.set("outings?r=101", listBody(0))
	api.set("outings?r=102", listBody(0))
	server := api.server()
	defer server.Close()

	store := openTestStore(t)
	cfg := newHarvestConfig(server.URL)
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	_, err := service.Run(context.Background(), "init")
	require.NoError(t, err)
	assert.Equal(t, 1, api.hitCount("/routes/101"))

	summary, err := service.Run(context.Background(), "init")
	require.NoError(t, err)

	act := summary["ice_climbing"]
	assert.Equal(t, 2, act.Skipped)
	assert.Equal(t, 0, act.Written)
	// Bekannte Routen lösen keinen Detailabruf mehr aus.
	assert.Equal(t, 1, api.hitCount("/routes/101"))
	assert.Equal(t, 1, api.hitCount("/routes/102"))
}

func TestHarvestUpdateWritesOutingForKnownRoute(t *testing.T) {
	api := newFakeAPI()
	api.set("outings?act=ice_climbing", listBody(1, `{"document_id": 903}`))
	api.set("/outings/903", outingDoc(903, "2026-02-12", 101))
	server := api.server()
	defer server.Close()

	store := openTestStore(t)
	cfg := newHarvestConfig(server.URL)
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	seedRoute(t, store, 101)
	seedOuting(t, store, 901, "2026-02-10")

	summary, err := service.Run(context.Background(), "update")
	require.NoError(t, err)

	act := summary["ice_climbing"]
	assert.Equal(t, 1, act.Written)
	assert.Equal(t, 0, act.Errored)

	var outing models.Outing
	err = store.DB.Preload("Routes").First(&outing, "outing_id = ?", 903).Error
	require.NoError(t, err)
	require.Len(t, outing.Routes, 1)
	assert.Equal(t, 101, outing.Routes[0].RouteID)
	require.NotNil(t, outing.Conditions)
	assert.Equal(t, "good", *outing.Conditions)
}

func TestHarvestUpdateBackfillsUnknownRoute(t *testing.T) {
	api := newFakeAPI()
	api.set("outings?act=ice_climbing", listBody(1, `{"document_id": 902}`))
	api.set("/outings/902", outingDoc(902, "2026-02-08", 200))
	api.set("/routes/200", routeDoc(200))
	api.set("outings?r=200", listBody(1, outingDoc(902, "2026-02-08", 200)))
	server := api.server()
	defer server.Close()

	store := openTestStore(t)
	cfg := newHarvestConfig(server.URL)
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	seedOuting(t, store, 901, "2026-02-10")

	summary, err := service.Run(context.Background(), "update")
	require.NoError(t, err)

	act := summary["ice_climbing"]
	assert.Equal(t, 1, act.Written)
	assert.Equal(t, 0, act.Errored)

	// Die nachgeladene Route bringt die Begehung mit; es gibt sie genau einmal.
	exists, err := store.RouteExists(200)
	require.NoError(t, err)
	assert.True(t, exists)

	var count int64
	store.DB.Model(&models.Outing{}).Where("outing_id = ?", 902).Count(&count)
	assert.Equal(t, int64(1), count)

	var route models.Route
	require.NoError(t, store.DB.Preload("Outings").First(&route, "route_id = ?", 200).Error)
	require.Len(t, route.Outings, 1)
	assert.Equal(t, 902, route.Outings[0].OutingID)
}

func TestHarvestUpdateSkipsKnownOutings(t *testing.T) {
	api := newFakeAPI()
	api.set("outings?act=ice_climbing", listBody(1, `{"document_id": 901}`))
	server := api.server()
	defer server.Close()

	store := openTestStore(t)
	cfg := newHarvestConfig(server.URL)
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	seedOuting(t, store, 901, "2026-02-10")

	summary, err := service.Run(context.Background(), "update")
	require.NoError(t, err)

	act := summary["ice_climbing"]
	assert.Equal(t, 1, act.Skipped)
	assert.Equal(t, 0, act.Written)
	assert.Equal(t, 0, api.hitCount("/outings/901"))
}

func TestHarvestUpdateRequiresPriorInit(t *testing.T) {
	store := openTestStore(t)
	cfg := newHarvestConfig("http://unused")
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	_, err := service.Run(context.Background(), "update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init")
}

func TestHarvestRejectsUnknownMode(t *testing.T) {
	store := openTestStore(t)
	cfg := newHarvestConfig("http://unused")
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	_, err := service.Run(context.Background(), "rebuild")
	require.Error(t, err)
}

func TestUpdateWindowSubtractsMargin(t *testing.T) {
	store := openTestStore(t)
	cfg := newHarvestConfig("http://unused")
	service := NewHarvestService(cfg, store, c2c.NewClient(cfg, zap.NewNop()), zap.NewNop())

	seedOuting(t, store, 901, "2026-02-10")

	windowStart, err := service.updateWindow()
	require.NoError(t, err)
	assert.Equal(t, "2026-02-03", windowStart.Format("2006-01-02"))
}

func seedRoute(t *testing.T, store *storage.Store, routeID int) {
	t.Helper()
	require.NoError(t, store.WritePage(func(tx *gorm.DB) error {
		return storage.InsertRoute(tx, &models.Route{RouteID: routeID, Name: fmt.Sprintf("Cascade %d", routeID)})
	}))
}

func seedOuting(t *testing.T, store *storage.Store, outingID int, date string) {
	t.Helper()
	require.NoError(t, store.DB.Create(&models.Outing{OutingID: outingID, Date: date}).Error)
}
