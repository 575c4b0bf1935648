package meteofrance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"ice-scout/config"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Endpunkte der DPClim-API.
const (
	pathInformationStation = "/information-station"
	pathCommandeFichier    = "/commande/fichier"
)

var listePaths = map[string]string{
	"horaire":         "/liste-stations/horaire",
	"quotidienne":     "/liste-stations/quotidienne",
	"infrahoraire-6m": "/liste-stations/infrahoraire-6m",
}

var commandePaths = map[string]string{
	"horaire":         "/commande-station/horaire",
	"quotidienne":     "/commande-station/quotidienne",
	"infrahoraire-6m": "/commande-station/infrahoraire-6m",
}

// Client kapselt die Zugriffe auf die Wetter-API. Die API liefert Bestellungen
// asynchron aus: erst Order platzieren, dann die Datei pollen.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	// sleep ist austauschbar, damit Tests ohne echte Wartezeiten auskommen.
	sleep func(time.Duration)
	now   func() time.Time
}

// NewClient erstellt einen neuen Wetter-API-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger, sleep: time.Sleep, now: time.Now}
}

// StationListing ist ein Eintrag der Stationsliste einer Region.
type StationListing struct {
	ID          string  `json:"id"`
	Name        string  `json:"nom"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Altitude    int     `json:"alt"`
	PosteOuvert bool    `json:"posteOuvert"`
}

// StationInfo sind die Metadaten einer einzelnen Station.
type StationInfo struct {
	DateStart  string `json:"dateDebut"`
	DateEnd    string `json:"dateFin"`
	Parameters []struct {
		Name string `json:"nom"`
	} `json:"parametres"`
}

func (c *Client) url(path string) string {
	return c.Config.MFBaseURL + path
}

func (c *Client) cadencePath(paths map[string]string) (string, error) {
	cadence := c.Config.MFCadence
	if cadence == "6m" {
		cadence = "infrahoraire-6m"
	}
	path, ok := paths[cadence]
	if !ok {
		return "", fmt.Errorf("unsupported cadence: %s", c.Config.MFCadence)
	}
	return path, nil
}

// getWithRetry führt einen GET mit API-Key-Header aus. Rate-Limits (429)
// pausieren eine Minute, 5xx zehn Sekunden; andere Status gehen unverändert
// an den Aufrufer zurück.
func (c *Client) getWithRetry(ctx context.Context, rawURL string, params url.Values, maxRetry int) ([]byte, int, error) {
	full := rawURL
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	var lastStatus int
	var lastBody []byte
	for attempt := 0; attempt <= maxRetry; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("apikey", c.Config.MFAPIKey)

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, 0, err
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, readErr
		}

		lastStatus = resp.StatusCode
		lastBody = body

		switch {
		case resp.StatusCode == 200 || resp.StatusCode == 201 || resp.StatusCode == 202 || resp.StatusCode == 204:
			return body, resp.StatusCode, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			c.Logger.Info("Rate-Limit erreicht, pausiere eine Minute.", zap.String("url", rawURL))
			c.sleep(time.Minute)
		case resp.StatusCode >= 500:
			c.Logger.Info("Serverfehler, kurze Pause vor erneutem Versuch.",
				zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
			c.sleep(10 * time.Second)
		default:
			return body, resp.StatusCode, fmt.Errorf("GET %s failed with status %d", rawURL, resp.StatusCode)
		}
	}
	return lastBody, lastStatus, fmt.Errorf("GET %s failed with status %d after retries", rawURL, lastStatus)
}

// ListStations listet alle Stationen einer Verwaltungsregion für die
// konfigurierte Kadenz.
func (c *Client) ListStations(ctx context.Context, region int) ([]StationListing, error) {
	path, err := c.cadencePath(listePaths)
	if err != nil {
		return nil, err
	}
	params := url.Values{"id-departement": {fmt.Sprintf("%d", region)}}

	body, _, err := c.getWithRetry(ctx, c.url(path), params, 5)
	if err != nil {
		return nil, fmt.Errorf("listing stations for region %d: %w", region, err)
	}

	var stations []StationListing
	if err := json.Unmarshal(body, &stations); err != nil {
		return nil, fmt.Errorf("decoding station list for region %d: %w", region, err)
	}
	return stations, nil
}

// StationMetadata holt die Metadaten einer Station (Datumsbereich, Messgrößen).
func (c *Client) StationMetadata(ctx context.Context, stationID string) (*StationInfo, error) {
	params := url.Values{"id-station": {stationID}}

	body, _, err := c.getWithRetry(ctx, c.url(pathInformationStation), params, 5)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for station %s: %w", stationID, err)
	}

	var infos []StationInfo
	if err := json.Unmarshal(body, &infos); err != nil {
		return nil, fmt.Errorf("decoding metadata for station %s: %w", stationID, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no metadata returned for station %s", stationID)
	}
	return &infos[0], nil
}

// PlaceOrder platziert eine Datenextraktion für den Zeitraum und gibt die
// Order-ID zurück.
func (c *Client) PlaceOrder(ctx context.Context, stationID string, start, end time.Time) (string, error) {
	path, err := c.cadencePath(commandePaths)
	if err != nil {
		return "", err
	}
	params := url.Values{
		"id-station":       {stationID},
		"date-deb-periode": {start.UTC().Format("2006-01-02T15:04:05Z")},
		"date-fin-periode": {end.UTC().Format("2006-01-02T15:04:05Z")},
	}

	body, _, err := c.getWithRetry(ctx, c.url(path), params, 5)
	if err != nil {
		return "", fmt.Errorf("placing order for station %s: %w", stationID, err)
	}

	orderID, err := extractOrderID(body)
	if err != nil {
		return "", fmt.Errorf("order for station %s: %w", stationID, err)
	}
	return orderID, nil
}

// DownloadOrder pollt den Datei-Endpunkt, bis Inhalt geliefert wird oder die
// Frist abläuft.
func (c *Client) DownloadOrder(ctx context.Context, orderID string) ([]byte, error) {
	deadline := c.now().Add(time.Duration(c.Config.MFPollTimeoutMin) * time.Minute)
	interval := time.Duration(c.Config.MFPollSeconds) * time.Second
	params := url.Values{"id-cmde": {orderID}}

	for {
		body, status, err := c.getWithRetry(ctx, c.url(pathCommandeFichier), params, 5)
		if err != nil {
			return nil, fmt.Errorf("downloading order %s: %w", orderID, err)
		}
		if status != 204 && len(body) > 0 {
			return body, nil
		}

		if c.now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for order %s", orderID)
		}
		c.sleep(interval)
	}
}

// extractOrderID sucht per Tiefensuche den ersten reinen Ziffern-String im
// Antwortbaum. Die Antwortstruktur des Bestell-Endpunkts ist schlecht
// spezifiziert; diese bewusst defensive Suche ersetzt keinen allgemeinen
// JSON-Walker.
func extractOrderID(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return "", fmt.Errorf("decoding order response: %w", err)
	}

	if id := findDigitString(tree); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("could not extract order id from response: %.200s", string(body))
}

func findDigitString(v interface{}) string {
	switch t := v.(type) {
	case string:
		if isDigits(t) {
			return t
		}
	case json.Number:
		if isDigits(t.String()) {
			return t.String()
		}
	case map[string]interface{}:
		for _, child := range t {
			if id := findDigitString(child); id != "" {
				return id
			}
		}
	case []interface{}:
		for _, child := range t {
			if id := findDigitString(child); id != "" {
				return id
			}
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
