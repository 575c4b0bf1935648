package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ice-scout/config"
	"ice-scout/models"
	"ice-scout/providers/meteofrance"
	"ice-scout/storage"
)

// StationSummary sind die Zähler eines Stations-Metadaten-Durchlaufs.
type StationSummary struct {
	RegionsScraped  int `json:"regions_scraped"`
	RegionsSkipped  int `json:"regions_skipped"`
	StationsWritten int `json:"stations_written"`
	StationsSkipped int `json:"stations_skipped"`
}

// StationService erntet die Stationsmetadaten der Wetter-API. Die Region ist
// die Einheit des Neustarts: liegt eine einzige Station mit dem Präfix einer
// Region in der Datenbank, gilt die ganze Region als geerntet.
type StationService struct {
	Config *config.Config
	Store  *storage.Store
	MF     *meteofrance.Client
	Logger *zap.Logger

	sleep func(time.Duration)
}

// NewStationService erstellt eine neue Instanz des StationService.
func NewStationService(cfg *config.Config, store *storage.Store, client *meteofrance.Client, logger *zap.Logger) *StationService {
	return &StationService{Config: cfg, Store: store, MF: client, Logger: logger, sleep: time.Sleep}
}

// HarvestMetadata erntet die Stationen aller noch nicht geernteten Regionen.
// Jede Region wird als Ganzes committet; eine teilweise geschriebene Region
// würde beim nächsten Lauf fälschlich übersprungen.
func (s *StationService) HarvestMetadata(ctx context.Context) (StationSummary, error) {
	summary := StationSummary{}
	updateDate := time.Now()

	knownIDs, err := s.Store.ExistingStationIDs()
	if err != nil {
		return summary, fmt.Errorf("loading known station ids: %w", err)
	}

	knownRegions := make(map[int]struct{})
	for id := range knownIDs {
		if len(id) >= 2 {
			if region, err := strconv.Atoi(id[:2]); err == nil {
				knownRegions[region] = struct{}{}
			}
		}
	}
	s.Logger.Info("Bekannte Stationen geladen.",
		zap.Int("stations", len(knownIDs)), zap.Int("regions", len(knownRegions)))

	for region := s.Config.MFRegionMin; region <= s.Config.MFRegionMax; region++ {
		if _, done := knownRegions[region]; done {
			summary.RegionsSkipped++
			continue
		}

		stations, skipped, err := s.harvestRegion(ctx, region, knownIDs, updateDate)
		if err != nil {
			return summary, fmt.Errorf("harvesting region %d: %w", region, err)
		}

		if err := s.Store.InsertStationBatch(stations); err != nil {
			return summary, fmt.Errorf("writing region %d: %w", region, err)
		}

		summary.RegionsScraped++
		summary.StationsWritten += len(stations)
		summary.StationsSkipped += skipped

		s.Logger.Info("Region geschrieben.",
			zap.Int("region", region),
			zap.Int("written", len(stations)),
			zap.Int("skipped", skipped))
	}

	s.Logger.Info("Stations-Metadaten-Durchlauf abgeschlossen.",
		zap.Int("regions_scraped", summary.RegionsScraped),
		zap.Int("regions_skipped", summary.RegionsSkipped),
		zap.Int("stations_written", summary.StationsWritten),
		zap.Int("stations_skipped", summary.StationsSkipped))
	return summary, nil
}

// harvestRegion listet die Stationen einer Region und holt für jede neue,
// offene Station die vollen Metadaten.
func (s *StationService) harvestRegion(ctx context.Context, region int, knownIDs map[string]struct{}, updateDate time.Time) ([]*models.WeatherStation, int, error) {
	listings, err := s.MF.ListStations(ctx, region)
	if err != nil {
		return nil, 0, err
	}

	var stations []*models.WeatherStation
	skipped := 0
	for _, listing := range listings {
		if _, known := knownIDs[listing.ID]; known || !listing.PosteOuvert || listing.ID == s.Config.MFExcludedStation {
			skipped++
			continue
		}

		info, err := s.MF.StationMetadata(ctx, listing.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("metadata for station %s: %w", listing.ID, err)
		}

		station := &models.WeatherStation{
			StationID:   listing.ID,
			Name:        listing.Name,
			Lat:         listing.Lat,
			Lon:         listing.Lon,
			Altitude:    listing.Altitude,
			DateStart:   parseStationDate(info.DateStart, "1900-01-01 00:00:00"),
			DateEnd:     parseStationDate(info.DateEnd, "2100-01-01 00:00:00"),
			LastUpdated: updateDate,
			OfInterest:  true,
		}
		for _, p := range info.Parameters {
			station.Parameters = append(station.Parameters, models.StationParameter{
				Name:        p.Name,
				LastUpdated: updateDate,
			})
		}
		stations = append(stations, station)

		// Kleine Pause, um das Rate-Limit der API zu schonen.
		s.sleep(time.Duration(s.Config.MFStationPauseSecs) * time.Second)
	}
	return stations, skipped, nil
}

// parseStationDate parst ein Stationsdatum; ein leerer oder unlesbarer Wert
// fällt auf den Default zurück. Ein offenes Gültigkeitsende wird auf
// 2100-01-01 gesetzt.
func parseStationDate(value, fallback string) time.Time {
	if value == "" {
		value = fallback
	}
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", fallback)
	}
	return t
}
