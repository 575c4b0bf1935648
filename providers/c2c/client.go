package c2c

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ice-scout/config"
	"ice-scout/models"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Client kapselt die Zugriffe auf die Camptocamp-API.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewClient erstellt einen neuen Camptocamp-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

func (c *Client) routesURL() string {
	return c.Config.C2CBaseURL + "/routes"
}

func (c *Client) outingsURL() string {
	return c.Config.C2CBaseURL + "/outings"
}

// ListRoutes paginiert über alle Routen einer Aktivitätskategorie.
func (c *Client) ListRoutes(activity string) *PageIterator {
	url := fmt.Sprintf("%s?act=%s", c.routesURL(), activity)
	return c.newIterator(url)
}

// ListOutings paginiert über die Begehungen einer Aktivität im Datumsfenster.
func (c *Client) ListOutings(activity string, start, end time.Time) *PageIterator {
	url := fmt.Sprintf("%s?date=%s,%s&act=%s",
		c.outingsURL(), start.Format("2006-01-02"), end.Format("2006-01-02"), activity)
	return c.newIterator(url)
}

// RouteOutings paginiert über sämtliche Begehungen einer einzelnen Route.
func (c *Client) RouteOutings(routeID int) *PageIterator {
	url := fmt.Sprintf("%s?r=%d", c.outingsURL(), routeID)
	return c.newIterator(url)
}

func (c *Client) newIterator(url string) *PageIterator {
	return NewPageIterator(url, c.Config.C2CResultsPerPage, c.Config.C2CMaxRetries,
		time.Duration(c.Config.C2CBackoffSeconds)*time.Second, c.Logger)
}

// FetchRoute holt das vollständige Routendokument.
func (c *Client) FetchRoute(routeID int) (*RouteDoc, error) {
	var doc RouteDoc
	if err := c.getJSON(fmt.Sprintf("%s/%d", c.routesURL(), routeID), &doc); err != nil {
		return nil, err
	}
	if doc.DocumentID == 0 {
		return nil, fmt.Errorf("route %d: empty document", routeID)
	}
	return &doc, nil
}

// FetchOuting holt das vollständige Begehungsdokument. Der Abruf ist im
// Update-Modus immer nötig, weil Listenseiten die Routen-Assoziationen
// nicht enthalten.
func (c *Client) FetchOuting(outingID int) (*OutingDoc, error) {
	var doc OutingDoc
	if err := c.getJSON(fmt.Sprintf("%s/%d", c.outingsURL(), outingID), &doc); err != nil {
		return nil, err
	}
	if doc.DocumentID == 0 {
		return nil, fmt.Errorf("outing %d: empty document", outingID)
	}
	return &doc, nil
}

func (c *Client) getJSON(url string, out interface{}) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s failed with status %d: %.200s", url, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MapRoute wandelt ein Routendokument in unser Routenmodell um. Die
// Begehungsstubs werden vom Aufrufer ergänzt.
func MapRoute(doc *RouteDoc, title string, updateDate string) *models.Route {
	lon, lat := doc.Coordinates()

	route := &models.Route{
		RouteID:                doc.DocumentID,
		Name:                   title,
		Lat:                    lat,
		Lon:                    lon,
		SnowIceMixed:           doc.HasActivity("snow_ice_mixed"),
		MountainClimbing:       doc.HasActivity("mountain_climbing"),
		IceClimbing:            doc.HasActivity("ice_climbing"),
		ElevationMin:           doc.ElevationMin,
		ElevationMax:           doc.ElevationMax,
		DifficultiesHeight:     doc.DifficultiesHeight,
		HeightDiffDifficulties: doc.HeightDiffDifficulties,
		Glacier:                doc.GlacierGear,
		GlobalRating:           doc.GlobalRating,
		IceRating:              doc.IceRating,
		MixedRating:            doc.MixedRating,
		RockFreeRating:         doc.RockFreeRating,
		LastUpdated:            updateDate,
	}

	for _, o := range doc.Orientations {
		route.Orientations = append(route.Orientations, models.Orientation{Orientation: o})
	}
	for _, a := range doc.Countries() {
		route.Countries = append(route.Countries, models.Country{
			CountryID:   a.DocumentID,
			CountryName: a.LocaleName(),
		})
	}

	return route
}

// MapOuting wandelt ein Begehungsdokument in unser Begehungsmodell um.
func MapOuting(doc *OutingDoc, updateDate string) *models.Outing {
	return &models.Outing{
		OutingID:    doc.DocumentID,
		Date:        doc.DateStart,
		Conditions:  doc.ConditionRating,
		LastUpdated: updateDate,
	}
}
