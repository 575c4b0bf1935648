package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"ice-scout/config"
	"ice-scout/geo"
	"ice-scout/models"
	"ice-scout/storage"
)

// AttributionSummary sind die Zähler eines Zuordnungslaufs.
type AttributionSummary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Uncovered int `json:"uncovered"`
}

// AttributionService ordnet jeder Route die nächstgelegenen Wetterstationen
// zu: Bounding-Box als grober Vorfilter, dann Ranking nach echter
// Großkreisdistanz.
type AttributionService struct {
	Config *config.Config
	Store  *storage.Store
	Logger *zap.Logger
}

// NewAttributionService erstellt eine neue Instanz des AttributionService.
func NewAttributionService(cfg *config.Config, store *storage.Store, logger *zap.Logger) *AttributionService {
	return &AttributionService{Config: cfg, Store: store, Logger: logger}
}

// Run führt einen Zuordnungslauf aus. "reset" löscht alle bestehenden
// Verknüpfungen und ordnet jede Route des Landes neu zu; "update" behandelt
// nur Routen ohne Stationen.
func (a *AttributionService) Run(ctx context.Context, mode string, countryID uint) (AttributionSummary, error) {
	summary := AttributionSummary{}
	log := a.Logger.With(zap.String("mode", mode), zap.Uint("country_id", countryID))

	if mode != "update" && mode != "reset" {
		return summary, fmt.Errorf("unsupported attribution mode: %s", mode)
	}

	if mode == "reset" {
		log.Warn("Lösche alle Route-Station-Verknüpfungen.")
		if err := a.Store.DeleteAllRouteStationLinks(); err != nil {
			return summary, fmt.Errorf("resetting attribution: %w", err)
		}
	}

	routes, err := a.Store.RoutesNeedingAttribution(countryID, mode)
	if err != nil {
		return summary, fmt.Errorf("loading routes for attribution: %w", err)
	}
	log.Info("Routen für Zuordnung geladen.", zap.Int("count", len(routes)))

	for i := range routes {
		route := &routes[i]
		summary.Processed++

		stationIDs, err := a.nearestStations(route)
		if err != nil {
			return summary, fmt.Errorf("attributing route %d: %w", route.RouteID, err)
		}
		if len(stationIDs) == 0 {
			summary.Uncovered++
			continue
		}

		if err := a.Store.ReplaceRouteStations(route.RouteID, stationIDs); err != nil {
			return summary, fmt.Errorf("replacing stations of route %d: %w", route.RouteID, err)
		}
		summary.Updated++
	}

	// Das Interest-Flag wird erst nach dem vollständigen Routendurchlauf
	// neu berechnet; eine Station kann durch spätere Routen relevant werden.
	if err := a.Store.RecomputeStationInterestFlags(); err != nil {
		return summary, fmt.Errorf("recomputing station interest flags: %w", err)
	}

	log.Info("Zuordnungslauf abgeschlossen.",
		zap.Int("processed", summary.Processed),
		zap.Int("updated", summary.Updated),
		zap.Int("uncovered", summary.Uncovered))
	return summary, nil
}

// nearestStations liefert die IDs der höchstens K nächstgelegenen Stationen,
// aufsteigend nach Distanz. Die Bounding-Box überdeckt an den Ecken mehr als
// den Suchradius; das Ranking nach echter Distanz korrigiert das.
func (a *AttributionService) nearestStations(route *models.Route) ([]string, error) {
	if route.Lat == nil || route.Lon == nil {
		return nil, nil
	}

	minLat, maxLat, minLon, maxLon := geo.BoundingBox(*route.Lat, *route.Lon, a.Config.AttributionRadiusKm)
	candidates, err := a.Store.StationsInBox(minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := geo.HaversineDistance(*route.Lat, *route.Lon, candidates[i].Lat, candidates[i].Lon)
		dj := geo.HaversineDistance(*route.Lat, *route.Lon, candidates[j].Lat, candidates[j].Lon)
		return di < dj
	})

	keep := a.Config.AttributionKeep
	if keep > len(candidates) {
		keep = len(candidates)
	}

	ids := make([]string, 0, keep)
	for _, s := range candidates[:keep] {
		ids = append(ids, s.StationID)
	}
	return ids, nil
}
