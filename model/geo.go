package model

import (
	"math"
)

// Planar distance in degrees. This is what registry matching
// thresholds are expressed in.
func (p Position) DegreeDistance(q Position) float64 {
	return math.Hypot(p.Lat-q.Lat, p.Lon-q.Lon)
}

// Great circle distance in kilometers.
func (p Position) HaversineDistance(q Position) float64 {
	const earthRadiusKm = 6371

	aLatRad := p.Lat * math.Pi / 180
	aLonRad := p.Lon * math.Pi / 180
	bLatRad := q.Lat * math.Pi / 180
	bLonRad := q.Lon * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * earthRadiusKm
}
