package models

import (
	"time"
)

// WeatherStation repräsentiert eine Wetterstation. Die ID kommt von der
// Quell-API und ist nicht zwingend numerisch; die ersten zwei Zeichen
// kodieren die Verwaltungsregion.
type WeatherStation struct {
	StationID string `json:"station_id" gorm:"primaryKey;size:32"`
	Name      string `json:"name"`

	Lat      float64 `json:"lat" gorm:"not null"`
	Lon      float64 `json:"lon" gorm:"not null"`
	Altitude int     `json:"altitude" gorm:"not null"`

	DateStart   time.Time `json:"date_start"`
	DateEnd     time.Time `json:"date_end"`
	LastUpdated time.Time `json:"last_updated"`

	// OfInterest wird nach jedem Zuordnungslauf global neu berechnet:
	// false genau dann, wenn die Station mit keiner Route verknüpft ist.
	OfInterest bool `json:"of_interest" gorm:"default:true"`

	Parameters []StationParameter `json:"parameters,omitempty" gorm:"many2many:stations_parameters_mapping;joinForeignKey:StationID;joinReferences:ParameterID"`
	Routes     []Route            `json:"routes,omitempty" gorm:"many2many:route_stations_mapping;joinForeignKey:StationID;joinReferences:RouteID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (WeatherStation) TableName() string {
	return "weather_stations"
}

// StationParameter ist eine physikalische Messgröße, die eine Station liefert.
type StationParameter struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"uniqueIndex;not null"`
	LastUpdated time.Time `json:"last_updated"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (StationParameter) TableName() string {
	return "stations_parameters"
}
