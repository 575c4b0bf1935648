package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ice-scout/models"
)

// ErrNoOutings wird zurückgegeben, wenn das inkrementelle Fenster berechnet
// werden soll, aber noch keine Begehung in der Datenbank liegt.
var ErrNoOutings = errors.New("no outings in store")

// OutingIDMode steuert, nach welchem Datum ExistingOutingIDs filtert.
type OutingIDMode string

const (
	ByUpdateDate OutingIDMode = "update_date"
	ByOutingDate OutingIDMode = "outing_date"
)

// Standard-Orientierungsvokabular, wird bei der Migration vorbefüllt.
var defaultOrientations = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Store kapselt alle Persistenzoperationen über GORM.
type Store struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStore erstellt einen neuen Store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{DB: db, Logger: logger}
}

// AutoMigrate legt das Schema an und befüllt das Orientierungsvokabular.
func (s *Store) AutoMigrate() error {
	err := s.DB.AutoMigrate(
		&models.Route{},
		&models.Outing{},
		&models.Country{},
		&models.Orientation{},
		&models.WeatherStation{},
		&models.StationParameter{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	var count int64
	s.DB.Model(&models.Orientation{}).Count(&count)
	if count == 0 {
		for _, o := range defaultOrientations {
			s.DB.Create(&models.Orientation{Orientation: o})
		}
		s.Logger.Info("Orientierungsvokabular vorbefüllt.", zap.Int("count", len(defaultOrientations)))
	}
	return nil
}

// IsConflict erkennt Eindeutigkeitsverletzungen über die unterstützten Treiber hinweg.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// ExistingRouteIDs gibt die IDs aller Routen zurück, optional gefiltert auf
// Routen mit last_updated ab minDate (Format 2006-01-02).
func (s *Store) ExistingRouteIDs(minDate string) (map[int]struct{}, error) {
	var ids []int
	q := s.DB.Model(&models.Route{})
	if minDate != "" {
		q = q.Where("last_updated >= ? AND last_updated IS NOT NULL", minDate)
	}
	if err := q.Pluck("route_id", &ids).Error; err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

// ExistingOutingIDs gibt die IDs der Begehungen ab minDate zurück; mode
// entscheidet, ob nach Aktualisierungs- oder Begehungsdatum gefiltert wird.
func (s *Store) ExistingOutingIDs(minDate string, mode OutingIDMode) (map[int]struct{}, error) {
	q := s.DB.Model(&models.Outing{})
	switch mode {
	case ByUpdateDate:
		q = q.Where("last_updated >= ? AND last_updated IS NOT NULL", minDate)
	case ByOutingDate:
		q = q.Where("date >= ?", minDate)
	default:
		return nil, fmt.Errorf("unsupported outing id mode: %s", mode)
	}
	var ids []int
	if err := q.Pluck("outing_id", &ids).Error; err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

// ExistingStationIDs gibt alle bekannten Stations-IDs zurück.
func (s *Store) ExistingStationIDs() (map[string]struct{}, error) {
	var ids []string
	if err := s.DB.Model(&models.WeatherStation{}).Pluck("station_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// RouteExists prüft, ob die Route bereits in der Datenbank liegt.
func (s *Store) RouteExists(routeID int) (bool, error) {
	var count int64
	err := s.DB.Model(&models.Route{}).Where("route_id = ?", routeID).Count(&count).Error
	return count > 0, err
}

// LatestOutingDate gibt das Datum der jüngsten Begehung zurück.
func (s *Store) LatestOutingDate() (time.Time, error) {
	var dateStr *string
	err := s.DB.Model(&models.Outing{}).Select("MAX(date)").Scan(&dateStr).Error
	if err != nil {
		return time.Time{}, err
	}
	if dateStr == nil || *dateStr == "" {
		return time.Time{}, ErrNoOutings
	}
	return time.Parse("2006-01-02", *dateStr)
}

// WritePage führt fn in einer Transaktion aus. Eine Seite (bzw. eine Region)
// ist die Einheit des Neustarts und wird immer als Ganzes committet.
func (s *Store) WritePage(fn func(tx *gorm.DB) error) error {
	return s.DB.Transaction(fn)
}

// GetOrCreateOrientation holt einen Vokabulareintrag oder legt ihn an.
func GetOrCreateOrientation(tx *gorm.DB, name string) (models.Orientation, error) {
	var o models.Orientation
	err := tx.Where(models.Orientation{Orientation: name}).FirstOrCreate(&o).Error
	return o, err
}

// GetOrCreateCountry holt ein Land anhand seines Namens oder legt es an.
func GetOrCreateCountry(tx *gorm.DB, countryID uint, name string) (models.Country, error) {
	var c models.Country
	err := tx.Where(models.Country{CountryName: name}).
		Attrs(models.Country{CountryID: countryID}).
		FirstOrCreate(&c).Error
	return c, err
}

// GetOrCreateParameter holt eine Messgröße oder legt sie an.
func GetOrCreateParameter(tx *gorm.DB, name string, lastUpdated time.Time) (models.StationParameter, error) {
	var p models.StationParameter
	err := tx.Where(models.StationParameter{Name: name}).
		Attrs(models.StationParameter{LastUpdated: lastUpdated}).
		FirstOrCreate(&p).Error
	return p, err
}

// InsertRoute schreibt eine Route inklusive eingebetteter Begehungsstubs.
// Vokabularreferenzen werden per get-or-create aufgelöst, bevor die Route
// mit ihren Verknüpfungen angelegt wird.
func InsertRoute(tx *gorm.DB, route *models.Route) error {
	for i, o := range route.Orientations {
		resolved, err := GetOrCreateOrientation(tx, o.Orientation)
		if err != nil {
			return fmt.Errorf("resolving orientation %q: %w", o.Orientation, err)
		}
		route.Orientations[i] = resolved
	}
	for i, c := range route.Countries {
		resolved, err := GetOrCreateCountry(tx, c.CountryID, c.CountryName)
		if err != nil {
			return fmt.Errorf("resolving country %q: %w", c.CountryName, err)
		}
		route.Countries[i] = resolved
	}
	return tx.Create(route).Error
}

// InsertOuting schreibt eine Begehung und verknüpft sie mit bereits
// existierenden Routen.
func InsertOuting(tx *gorm.DB, outing *models.Outing) error {
	return tx.Create(outing).Error
}

// InsertStationBatch schreibt alle Stationen einer Region in einer einzigen
// Transaktion. Teilweise geschriebene Regionen würden die Neustartlogik
// unterlaufen, daher alles oder nichts.
func (s *Store) InsertStationBatch(stations []*models.WeatherStation) error {
	if len(stations) == 0 {
		return nil
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		for _, station := range stations {
			for i, p := range station.Parameters {
				resolved, err := GetOrCreateParameter(tx, p.Name, p.LastUpdated)
				if err != nil {
					return fmt.Errorf("resolving parameter %q: %w", p.Name, err)
				}
				station.Parameters[i] = resolved
			}
			if err := tx.Create(station).Error; err != nil {
				return fmt.Errorf("inserting station %s: %w", station.StationID, err)
			}
		}
		return nil
	})
}

// StationsOfInterest gibt alle Stationen zurück, für die Wetterhistorie
// geladen werden soll.
func (s *Store) StationsOfInterest() ([]models.WeatherStation, error) {
	var stations []models.WeatherStation
	err := s.DB.Where("of_interest = ?", true).Find(&stations).Error
	return stations, err
}

// RoutesNeedingAttribution lädt die Routen des Landes, die eine
// Stationszuordnung benötigen. Im Modus "update" sind das nur Routen ohne
// verknüpfte Station, im Modus "reset" alle Routen mit Koordinaten.
func (s *Store) RoutesNeedingAttribution(countryID uint, mode string) ([]models.Route, error) {
	q := s.DB.Model(&models.Route{}).
		Joins("JOIN countries_mapping cm ON cm.route_id = routes.route_id").
		Where("cm.country_id = ?", countryID).
		Where("routes.lat IS NOT NULL AND routes.lon IS NOT NULL")

	if mode == "update" {
		q = q.Where("routes.route_id NOT IN (SELECT route_id FROM route_stations_mapping)")
	}

	var routes []models.Route
	err := q.Find(&routes).Error
	return routes, err
}

// StationsInBox gibt alle Stationen innerhalb des Rechtecks zurück. Das ist
// ein grober Vorfilter; die Eckbereiche liegen außerhalb des Suchradius und
// müssen über die echte Distanz aussortiert werden.
func (s *Store) StationsInBox(minLat, maxLat, minLon, maxLon float64) ([]models.WeatherStation, error) {
	var stations []models.WeatherStation
	err := s.DB.
		Where("lat BETWEEN ? AND ?", minLat, maxLat).
		Where("lon BETWEEN ? AND ?", minLon, maxLon).
		Find(&stations).Error
	return stations, err
}

// ReplaceRouteStations ersetzt die Stationsmenge einer Route vollständig.
func (s *Store) ReplaceRouteStations(routeID int, stationIDs []string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM route_stations_mapping WHERE route_id = ?", routeID).Error; err != nil {
			return err
		}
		for _, sid := range stationIDs {
			err := tx.Exec("INSERT INTO route_stations_mapping (route_id, station_id) VALUES (?, ?)", routeID, sid).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAllRouteStationLinks löscht jede Route-Station-Verknüpfung.
func (s *Store) DeleteAllRouteStationLinks() error {
	return s.DB.Exec("DELETE FROM route_stations_mapping").Error
}

// RecomputeStationInterestFlags berechnet das of_interest-Flag global neu:
// false genau dann, wenn die Station keiner Route zugeordnet ist. Läuft
// immer erst nach einem vollständigen Zuordnungslauf, nie pro Route.
func (s *Store) RecomputeStationInterestFlags() error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.WeatherStation{}).
			Where("station_id NOT IN (SELECT station_id FROM route_stations_mapping)").
			Update("of_interest", false).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.WeatherStation{}).
			Where("station_id IN (SELECT station_id FROM route_stations_mapping)").
			Update("of_interest", true).Error
	})
}

func toSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
