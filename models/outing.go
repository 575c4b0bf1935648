package models

// Outing repräsentiert eine gemeldete Begehung. Eine Begehung referenziert in
// der Praxis immer mindestens eine Route.
type Outing struct {
	OutingID    int     `json:"outing_id" gorm:"primaryKey;autoIncrement:false"`
	Date        string  `json:"date" gorm:"index"`
	Conditions  *string `json:"conditions,omitempty"`
	LastUpdated string  `json:"last_updated,omitempty" gorm:"index"`

	Routes []Route `json:"routes,omitempty" gorm:"many2many:outings_mapping;joinForeignKey:OutingID;joinReferences:RouteID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Outing) TableName() string {
	return "outings"
}
