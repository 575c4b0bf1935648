package c2c

import "encoding/json"

// ListResponse ist die Antwort eines Listen-Endpunkts: Gesamtzahl plus die
// Dokumente der aktuellen Seite. Die Dokumente bleiben rohes JSON, weil
// Routen- und Begehungsseiten über dieselbe Paginierung laufen.
type ListResponse struct {
	Total     int               `json:"total"`
	Documents []json.RawMessage `json:"documents"`
}

// Locale ist ein sprachabhängiger Titelblock eines Dokuments.
type Locale struct {
	Lang        string `json:"lang"`
	Title       string `json:"title"`
	TitlePrefix string `json:"title_prefix"`
}

// Area ist ein Gebiet, dem ein Dokument zugeordnet ist (Land, Massiv, ...).
type Area struct {
	DocumentID uint     `json:"document_id"`
	AreaType   string   `json:"area_type"`
	Locales    []Locale `json:"locales"`
}

// RouteDoc repräsentiert ein Routendokument der API.
type RouteDoc struct {
	DocumentID int `json:"document_id"`

	Geometry struct {
		// Geom ist ein JSON-String mit einem GeoJSON-Punkt.
		Geom string `json:"geom"`
	} `json:"geometry"`

	Locales    []Locale `json:"locales"`
	Areas      []Area   `json:"areas"`
	Activities []string `json:"activities"`

	ElevationMin           *int `json:"elevation_min"`
	ElevationMax           *int `json:"elevation_max"`
	DifficultiesHeight     *int `json:"difficulties_height"`
	HeightDiffDifficulties *int `json:"height_diff_difficulties"`

	Orientations []string `json:"orientations"`

	GlacierGear    *string `json:"glacier_gear"`
	GlobalRating   *string `json:"global_rating"`
	IceRating      *string `json:"ice_rating"`
	MixedRating    *string `json:"mixed_rating"`
	RockFreeRating *string `json:"rock_free_rating"`
}

// OutingDoc repräsentiert ein Begehungsdokument der API. Die Routen-
// Assoziationen sind nur im Detaildokument enthalten, nicht in Listenseiten.
type OutingDoc struct {
	DocumentID      int     `json:"document_id"`
	DateStart       string  `json:"date_start"`
	ConditionRating *string `json:"condition_rating"`

	Associations struct {
		Routes []struct {
			DocumentID int `json:"document_id"`
		} `json:"routes"`
	} `json:"associations"`
}

type geoPoint struct {
	Coordinates []float64 `json:"coordinates"`
}

// Coordinates parst die Punktgeometrie und gibt (lon, lat) zurück.
// Beide sind nil, wenn die Geometrie fehlt oder nicht lesbar ist.
func (d *RouteDoc) Coordinates() (lon, lat *float64) {
	if d.Geometry.Geom == "" {
		return nil, nil
	}
	var p geoPoint
	if err := json.Unmarshal([]byte(d.Geometry.Geom), &p); err != nil || len(p.Coordinates) < 2 {
		return nil, nil
	}
	return &p.Coordinates[0], &p.Coordinates[1]
}

// Title gibt den Titel des Dokuments zurück, bevorzugt die französische
// Fassung inklusive Präfix.
func (d *RouteDoc) Title() string {
	pick := func(l Locale) string {
		if l.TitlePrefix != "" {
			return l.TitlePrefix + " : " + l.Title
		}
		return l.Title
	}
	for _, l := range d.Locales {
		if l.Lang == "fr" {
			return pick(l)
		}
	}
	if len(d.Locales) > 0 {
		return pick(d.Locales[0])
	}
	return ""
}

// Countries filtert die Gebiete des Dokuments auf Länder und gibt deren ID
// und französischen Namen zurück.
func (d *RouteDoc) Countries() []Area {
	var countries []Area
	for _, a := range d.Areas {
		if a.AreaType == "country" {
			countries = append(countries, a)
		}
	}
	return countries
}

// LocaleName gibt den französischen Namen eines Gebiets zurück, falls vorhanden.
func (a *Area) LocaleName() string {
	for _, l := range a.Locales {
		if l.Lang == "fr" {
			return l.Title
		}
	}
	if len(a.Locales) > 0 {
		return a.Locales[0].Title
	}
	return ""
}

// HasActivity prüft, ob das Dokument die Aktivität trägt.
func (d *RouteDoc) HasActivity(activity string) bool {
	for _, a := range d.Activities {
		if a == activity {
			return true
		}
	}
	return false
}
