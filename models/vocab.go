package models

// Country ist ein Ländereintrag aus den Gebietsdaten der Quell-API.
// Die ID ist die Dokument-ID des Landes bei der Quelle.
type Country struct {
	CountryID   uint   `json:"country_id" gorm:"primaryKey;autoIncrement:false"`
	CountryName string `json:"country_name" gorm:"index"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Country) TableName() string {
	return "countries"
}

// Orientation ist ein Eintrag des deduplizierten Orientierungsvokabulars
// (N, NE, E, ...). Einträge entstehen lazy beim ersten Auftreten und werden
// nie gelöscht.
type Orientation struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Orientation string `json:"orientation" gorm:"uniqueIndex;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Orientation) TableName() string {
	return "orientations"
}
