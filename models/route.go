package models

// Route repräsentiert eine Kletterroute mit ihren Metadaten und Verknüpfungen.
// Die ID wird von der Quell-API vergeben und ist unveränderlich.
type Route struct {
	RouteID int    `json:"route_id" gorm:"primaryKey;autoIncrement:false"`
	Name    string `json:"name,omitempty"`

	// Koordinaten sind optional, nicht jede Route hat eine aufgelöste Geometrie.
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	SnowIceMixed     bool `json:"snow_ice_mixed"`
	MountainClimbing bool `json:"mountain_climbing"`
	IceClimbing      bool `json:"ice_climbing"`

	ElevationMin           *int `json:"elevation_min,omitempty"`
	ElevationMax           *int `json:"elevation_max,omitempty"`
	DifficultiesHeight     *int `json:"difficulties_height,omitempty"`
	HeightDiffDifficulties *int `json:"height_diff_difficulties,omitempty"`

	Glacier        *string `json:"glacier,omitempty"`
	GlobalRating   *string `json:"global_rating,omitempty"`
	IceRating      *string `json:"ice_rating,omitempty"`
	MixedRating    *string `json:"mixed_rating,omitempty"`
	RockFreeRating *string `json:"rock_free_rating,omitempty"`

	LastUpdated string `json:"last_updated,omitempty" gorm:"index"`

	Orientations []Orientation    `json:"orientations,omitempty" gorm:"many2many:orientation_mapping;joinForeignKey:RouteID;joinReferences:OrientationID"`
	Countries    []Country        `json:"countries,omitempty" gorm:"many2many:countries_mapping;joinForeignKey:RouteID;joinReferences:CountryID"`
	Outings      []Outing         `json:"outings,omitempty" gorm:"many2many:outings_mapping;joinForeignKey:RouteID;joinReferences:OutingID"`
	Stations     []WeatherStation `json:"stations,omitempty" gorm:"many2many:route_stations_mapping;joinForeignKey:RouteID;joinReferences:StationID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Route) TableName() string {
	return "routes"
}
