package services

import (
	"errors"
	"fmt"
	"time"

	"ice-scout/storage"
)

// updateWindow berechnet den Beginn des inkrementellen Fensters: das Datum
// der jüngsten Begehung abzüglich einer Sicherheitsmarge, weil Begehungen
// mit einem Datum vor ihrem Upload gemeldet werden können. Eine leere
// Datenbank ist ein fataler Vorbedingungsfehler; "update" setzt einen
// vorherigen "init"-Durchlauf voraus.
func (h *HarvestService) updateWindow() (time.Time, error) {
	latest, err := h.Store.LatestOutingDate()
	if err != nil {
		if errors.Is(err, storage.ErrNoOutings) {
			return time.Time{}, fmt.Errorf("update mode requires at least one prior init pass: %w", err)
		}
		return time.Time{}, fmt.Errorf("determining latest outing date: %w", err)
	}
	return latest.AddDate(0, 0, -h.Config.WindowMarginDays), nil
}
