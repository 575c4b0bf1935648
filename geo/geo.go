// Package geo enthält die reinen Geo-Funktionen für die Stationszuordnung.
package geo

import "math"

// Erdradius in Kilometern.
const earthRadiusKm = 6371.0

// BoundingBox berechnet ein Rechteck um eine Koordinate, das den Kreis mit
// dem gegebenen Radius vollständig enthält. Das Rechteck übertrifft den Kreis
// an den Ecken; wer echte Distanzen braucht, muss mit HaversineDistance
// nachfiltern.
func BoundingBox(lat, lon, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	deltaLat := (radiusKm / earthRadiusKm) * (180.0 / math.Pi)

	// Die Längengrad-Spanne hängt vom Breitengrad ab.
	deltaLon := deltaLat / math.Cos(lat*math.Pi/180.0)

	return lat - deltaLat, lat + deltaLat, lon - deltaLon, lon + deltaLon
}

// HaversineDistance berechnet die Großkreisdistanz zwischen zwei Koordinaten
// in Kilometern.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180.0
	phi2 := lat2 * math.Pi / 180.0
	dPhi := (lat2 - lat1) * math.Pi / 180.0
	dLambda := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
