package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistanceKnownPair(t *testing.T) {
	// Paris - Lyon, Referenzwert ca. 392 km
	d := HaversineDistance(48.8566, 2.3522, 45.7640, 4.8357)
	assert.InDelta(t, 392.0, d, 5.0)
}

func TestHaversineDistanceSymmetric(t *testing.T) {
	d1 := HaversineDistance(45.9, 6.9, 44.1, 7.3)
	d2 := HaversineDistance(44.1, 7.3, 45.9, 6.9)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestHaversineDistanceZeroForSamePoint(t *testing.T) {
	assert.InDelta(t, 0.0, HaversineDistance(45.5, 6.5, 45.5, 6.5), 1e-9)
}

// Die Box muss den Kreis vollständig enthalten: jeder Punkt, der innerhalb
// des Radius liegt, muss auch innerhalb der Box liegen.
func TestBoundingBoxContainsRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		// Breitengrade abseits der Pole, wie im Zielgebiet
		lat := rng.Float64()*120 - 60
		lon := rng.Float64()*360 - 180
		radius := rng.Float64()*50 + 1

		minLat, maxLat, minLon, maxLon := BoundingBox(lat, lon, radius)

		// Zufälliger Punkt klar innerhalb des Radius
		bearing := rng.Float64() * 360
		dist := rng.Float64() * radius * 0.95
		pLat, pLon := offsetPoint(lat, lon, dist, bearing)

		if HaversineDistance(lat, lon, pLat, pLon) > radius {
			continue
		}
		assert.GreaterOrEqual(t, pLat, minLat)
		assert.LessOrEqual(t, pLat, maxLat)
		assert.GreaterOrEqual(t, pLon, minLon)
		assert.LessOrEqual(t, pLon, maxLon)
	}
}

func TestBoundingBoxWidensWithLatitude(t *testing.T) {
	_, _, minLonEq, maxLonEq := BoundingBox(0, 0, 20)
	_, _, minLonN, maxLonN := BoundingBox(60, 0, 20)
	assert.Greater(t, maxLonN-minLonN, maxLonEq-minLonEq)
}

// offsetPoint verschiebt eine Koordinate näherungsweise um dist Kilometer in
// Richtung bearing (Grad). Für die Box-Eigenschaft reicht die Näherung über
// die lokale Längengrad-Skalierung.
func offsetPoint(lat, lon, dist, bearing float64) (float64, float64) {
	const kmPerDegLat = 111.19
	rad := bearing * math.Pi / 180.0
	dLat := dist * math.Cos(rad) / kmPerDegLat
	dLon := dist * math.Sin(rad) / (kmPerDegLat * math.Cos(lat*math.Pi/180.0))
	return lat + dLat, lon + dLon
}
