package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ice-scout/config"
	"ice-scout/models"
	"ice-scout/providers/c2c"
	"ice-scout/storage"
)

// ActivitySummary sind die Zähler eines Harvest-Durchlaufs für eine
// Aktivitätskategorie.
type ActivitySummary struct {
	Scraped   int `json:"total_scraped"`
	Written   int `json:"total_written"`
	Skipped   int `json:"total_skipped"`
	Errored   int `json:"total_errored"`
	Conflicts int `json:"total_conflicts"`
}

// HarvestSummary fasst einen Durchlauf über alle Aktivitäten zusammen.
type HarvestSummary map[string]*ActivitySummary

// HarvestService orchestriert die Harvest-Durchläufe über die Routen- und
// Begehungsdaten der Quell-API.
type HarvestService struct {
	Config *config.Config
	Store  *storage.Store
	C2C    *c2c.Client
	Logger *zap.Logger
}

// NewHarvestService erstellt eine neue Instanz des HarvestService.
func NewHarvestService(cfg *config.Config, store *storage.Store, client *c2c.Client, logger *zap.Logger) *HarvestService {
	return &HarvestService{Config: cfg, Store: store, C2C: client, Logger: logger}
}

// routeResult ist das getaggte Ergebnis eines Routen-Workers. Worker geben
// Fehler immer als Wert zurück, damit ein einzelnes Element nie die ganze
// Seite abbricht.
type routeResult struct {
	RouteID int
	Skipped bool
	Err     error
	Route   *models.Route
}

// outingResult ist das getaggte Ergebnis eines Begehungs-Workers. Es trägt
// nur die Routen-IDs, nicht die vollen Routendaten.
type outingResult struct {
	OutingID int
	Skipped  bool
	Err      error
	Outing   *models.Outing
	RouteIDs []int
}

// Run führt einen vollständigen Harvest-Durchlauf aus. Der Modus "init"
// erntet Routen (inklusive aller Begehungen), "update" nur die Begehungen
// im inkrementellen Fenster.
func (h *HarvestService) Run(ctx context.Context, mode string) (HarvestSummary, error) {
	log := h.Logger.With(zap.String("mode", mode))
	log.Info("Starte Harvest-Durchlauf.")

	switch mode {
	case "init":
		return h.harvestRoutes(ctx)
	case "update":
		windowStart, err := h.updateWindow()
		if err != nil {
			return nil, err
		}
		log.Info("Inkrementelles Fenster berechnet.",
			zap.String("window_start", windowStart.Format("2006-01-02")))
		return h.harvestOutings(ctx, windowStart)
	default:
		return nil, fmt.Errorf("unsupported harvest mode: %s", mode)
	}
}

// harvestRoutes erntet pro Aktivität alle Routen, die noch nicht in der
// Datenbank liegen, samt ihrer Begehungen.
func (h *HarvestService) harvestRoutes(ctx context.Context) (HarvestSummary, error) {
	updateDate := time.Now().Format("2006-01-02")
	summary := make(HarvestSummary)

	for _, activity := range h.Config.Activities() {
		log := h.Logger.With(zap.String("activity", activity), zap.String("target", "routes"))
		start := time.Now()

		skipSet, err := h.Store.ExistingRouteIDs("")
		if err != nil {
			return summary, fmt.Errorf("loading route skip-set: %w", err)
		}
		log.Info("Skip-Set geladen.", zap.Int("count", len(skipSet)))

		act := &ActivitySummary{}
		summary[activity] = act

		it := h.C2C.ListRoutes(activity)
		for {
			page, err := it.Next()
			if err != nil {
				return summary, fmt.Errorf("paging routes for %s: %w", activity, err)
			}
			if page == nil {
				break
			}

			results := h.scrapeRoutePage(page.Documents, skipSet, updateDate)
			if err := h.writeRoutePage(results, act); err != nil {
				return summary, err
			}
			act.Scraped += len(results)
		}

		log.Info("Aktivität abgeschlossen.",
			zap.Duration("duration", time.Since(start)),
			zap.Int("scraped", act.Scraped),
			zap.Int("written", act.Written),
			zap.Int("skipped", act.Skipped),
			zap.Int("errored", act.Errored),
			zap.Int("conflicts", act.Conflicts))
	}
	return summary, nil
}

// harvestOutings erntet pro Aktivität die Begehungen im Datumsfenster.
func (h *HarvestService) harvestOutings(ctx context.Context, windowStart time.Time) (HarvestSummary, error) {
	updateDate := time.Now().Format("2006-01-02")
	windowEnd := time.Now()
	summary := make(HarvestSummary)

	for _, activity := range h.Config.Activities() {
		log := h.Logger.With(zap.String("activity", activity), zap.String("target", "outings"))
		start := time.Now()

		// Begehungen werden gelegentlich mit einem Datum vor ihrem Upload
		// gemeldet, daher reicht das Skip-Set weiter zurück als das Fenster.
		lookback := windowStart.AddDate(0, 0, -h.Config.SkipSetLookbackDays)
		skipSet, err := h.Store.ExistingOutingIDs(lookback.Format("2006-01-02"), storage.ByOutingDate)
		if err != nil {
			return summary, fmt.Errorf("loading outing skip-set: %w", err)
		}
		log.Info("Skip-Set geladen.", zap.Int("count", len(skipSet)))

		act := &ActivitySummary{}
		summary[activity] = act

		it := h.C2C.ListOutings(activity, windowStart, windowEnd)
		for {
			page, err := it.Next()
			if err != nil {
				return summary, fmt.Errorf("paging outings for %s: %w", activity, err)
			}
			if page == nil {
				break
			}

			results := h.scrapeOutingPage(page.Documents, skipSet, updateDate)
			if err := h.writeOutingPage(results, updateDate, act); err != nil {
				return summary, err
			}
			act.Scraped += len(results)
		}

		log.Info("Aktivität abgeschlossen.",
			zap.Duration("duration", time.Since(start)),
			zap.Int("scraped", act.Scraped),
			zap.Int("written", act.Written),
			zap.Int("skipped", act.Skipped),
			zap.Int("errored", act.Errored),
			zap.Int("conflicts", act.Conflicts))
	}
	return summary, nil
}

// scrapeRoutePage verteilt die Dokumente einer Seite auf den Worker-Pool.
// Worker teilen keinen veränderlichen Zustand; jeder erhält das Skip-Set
// nur lesend und schreibt in seinen eigenen Ergebnis-Slot.
func (h *HarvestService) scrapeRoutePage(docs []json.RawMessage, skipSet map[int]struct{}, updateDate string) []routeResult {
	results := make([]routeResult, len(docs))

	workers := h.Config.WorkerCount
	if !h.Config.ParallelFor("init") || workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)
	for i, raw := range docs {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, raw json.RawMessage) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[i] = h.scrapeRouteListed(raw, skipSet, updateDate)
		}(i, raw)
	}
	wg.Wait()
	return results
}

func (h *HarvestService) scrapeOutingPage(docs []json.RawMessage, skipSet map[int]struct{}, updateDate string) []outingResult {
	results := make([]outingResult, len(docs))

	workers := h.Config.WorkerCount
	if !h.Config.ParallelFor("update") || workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)
	for i, raw := range docs {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, raw json.RawMessage) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[i] = h.scrapeOutingListed(raw, skipSet, updateDate)
		}(i, raw)
	}
	wg.Wait()
	return results
}

// scrapeRouteListed verarbeitet ein Routendokument einer Listenseite.
func (h *HarvestService) scrapeRouteListed(raw json.RawMessage, skipSet map[int]struct{}, updateDate string) routeResult {
	var listed c2c.RouteDoc
	if err := json.Unmarshal(raw, &listed); err != nil {
		return routeResult{Err: fmt.Errorf("decoding listed route: %w", err)}
	}
	if listed.DocumentID == 0 {
		return routeResult{Err: fmt.Errorf("listed route without document id")}
	}
	if _, skip := skipSet[listed.DocumentID]; skip {
		return routeResult{RouteID: listed.DocumentID, Skipped: true}
	}
	return h.scrapeRoute(listed.DocumentID, updateDate)
}

// scrapeRoute holt das volle Routendokument samt aller Begehungen. Wird auch
// synchron (am Pool vorbei) benutzt, wenn eine Begehung eine unbekannte Route
// referenziert.
func (h *HarvestService) scrapeRoute(routeID int, updateDate string) routeResult {
	doc, err := h.C2C.FetchRoute(routeID)
	if err != nil {
		return routeResult{RouteID: routeID, Err: err}
	}

	var outings []models.Outing
	it := h.C2C.RouteOutings(routeID)
	for {
		page, err := it.Next()
		if err != nil {
			return routeResult{RouteID: routeID, Err: fmt.Errorf("paging outings of route %d: %w", routeID, err)}
		}
		if page == nil {
			break
		}
		for _, rawOuting := range page.Documents {
			var od c2c.OutingDoc
			if err := json.Unmarshal(rawOuting, &od); err != nil {
				return routeResult{RouteID: routeID, Err: fmt.Errorf("decoding outing of route %d: %w", routeID, err)}
			}
			outings = append(outings, *c2c.MapOuting(&od, updateDate))
		}
	}

	route := c2c.MapRoute(doc, doc.Title(), updateDate)
	route.Outings = outings
	return routeResult{RouteID: routeID, Route: route}
}

// scrapeOutingListed verarbeitet ein Begehungsdokument einer Listenseite.
// Der Detailabruf ist erzwungen, weil Listenseiten keine Routen-Assoziationen
// enthalten.
func (h *HarvestService) scrapeOutingListed(raw json.RawMessage, skipSet map[int]struct{}, updateDate string) outingResult {
	var listed c2c.OutingDoc
	if err := json.Unmarshal(raw, &listed); err != nil {
		return outingResult{Err: fmt.Errorf("decoding listed outing: %w", err)}
	}
	if listed.DocumentID == 0 {
		return outingResult{Err: fmt.Errorf("listed outing without document id")}
	}
	if _, skip := skipSet[listed.DocumentID]; skip {
		return outingResult{OutingID: listed.DocumentID, Skipped: true}
	}

	doc, err := h.C2C.FetchOuting(listed.DocumentID)
	if err != nil {
		return outingResult{OutingID: listed.DocumentID, Err: err}
	}

	var routeIDs []int
	for _, r := range doc.Associations.Routes {
		routeIDs = append(routeIDs, r.DocumentID)
	}

	return outingResult{
		OutingID: doc.DocumentID,
		Outing:   c2c.MapOuting(doc, updateDate),
		RouteIDs: routeIDs,
	}
}

// writeRoutePage schreibt die Ergebnisse einer Routenseite in einer
// Transaktion. Einzelne Konflikte werden über Savepoints zurückgerollt und
// gezählt, ohne die Seite abzubrechen.
func (h *HarvestService) writeRoutePage(results []routeResult, act *ActivitySummary) error {
	return h.Store.WritePage(func(tx *gorm.DB) error {
		for i := range results {
			r := &results[i]
			switch {
			case r.Skipped:
				act.Skipped++
			case r.Err != nil:
				act.Errored++
				h.Logger.Warn("Route übersprungen wegen Fehler.",
					zap.Int("route_id", r.RouteID), zap.Error(r.Err))
			default:
				err := tx.Transaction(func(itemTx *gorm.DB) error {
					return storage.InsertRoute(itemTx, r.Route)
				})
				switch {
				case err == nil:
					act.Written++
				case storage.IsConflict(err):
					act.Conflicts++
					h.Logger.Warn("Integritätskonflikt beim Schreiben der Route.",
						zap.Int("route_id", r.RouteID))
				default:
					act.Errored++
					h.Logger.Error("Schreiben der Route fehlgeschlagen.",
						zap.Int("route_id", r.RouteID), zap.Error(err))
				}
			}
		}
		return nil
	})
}

// writeOutingPage schreibt die Ergebnisse einer Begehungsseite. Referenziert
// eine Begehung eine unbekannte Route, wird diese Route synchron geholt und
// eingefügt; deren Begehungsliste enthält die Begehung bereits, der separate
// Begehungs-Insert entfällt dann.
func (h *HarvestService) writeOutingPage(results []outingResult, updateDate string, act *ActivitySummary) error {
	return h.Store.WritePage(func(tx *gorm.DB) error {
		for i := range results {
			r := &results[i]
			switch {
			case r.Skipped:
				act.Skipped++
			case r.Err != nil:
				act.Errored++
				h.Logger.Warn("Begehung übersprungen wegen Fehler.",
					zap.Int("outing_id", r.OutingID), zap.Error(r.Err))
			default:
				h.writeOuting(tx, r, updateDate, act)
			}
		}
		return nil
	})
}

func (h *HarvestService) writeOuting(tx *gorm.DB, r *outingResult, updateDate string, act *ActivitySummary) {
	outingImplied := false

	for _, routeID := range r.RouteIDs {
		var count int64
		if err := tx.Model(&models.Route{}).Where("route_id = ?", routeID).Count(&count).Error; err != nil {
			act.Errored++
			h.Logger.Error("Existenzprüfung fehlgeschlagen.",
				zap.Int("route_id", routeID), zap.Error(err))
			return
		}
		if count > 0 {
			continue
		}

		h.Logger.Info("Begehung referenziert unbekannte Route, hole Route nach.",
			zap.Int("route_id", routeID), zap.Int("outing_id", r.OutingID))

		routeRes := h.scrapeRoute(routeID, updateDate)
		if routeRes.Err != nil {
			act.Errored++
			h.Logger.Error("Nachladen der Route fehlgeschlagen.",
				zap.Int("route_id", routeID), zap.Int("outing_id", r.OutingID), zap.Error(routeRes.Err))
			continue
		}

		err := tx.Transaction(func(itemTx *gorm.DB) error {
			return storage.InsertRoute(itemTx, routeRes.Route)
		})
		switch {
		case err == nil:
			// Die Route bringt ihre Begehungsliste mit, die Begehung ist
			// damit implizit geschrieben.
			outingImplied = true
		case storage.IsConflict(err):
			act.Conflicts++
		default:
			act.Errored++
			h.Logger.Error("Schreiben der nachgeladenen Route fehlgeschlagen.",
				zap.Int("route_id", routeID), zap.Error(err))
		}
	}

	if outingImplied {
		act.Written++
		return
	}

	err := tx.Transaction(func(itemTx *gorm.DB) error {
		outing := r.Outing
		for _, routeID := range r.RouteIDs {
			outing.Routes = append(outing.Routes, models.Route{RouteID: routeID})
		}
		return storage.InsertOuting(itemTx, outing)
	})
	switch {
	case err == nil:
		act.Written++
	case storage.IsConflict(err):
		act.Conflicts++
		h.Logger.Warn("Integritätskonflikt beim Schreiben der Begehung.",
			zap.Int("outing_id", r.OutingID))
	default:
		act.Errored++
		h.Logger.Error("Schreiben der Begehung fehlgeschlagen.",
			zap.Int("outing_id", r.OutingID), zap.Error(err))
	}
}
