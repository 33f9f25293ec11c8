// README: Pure geographic and fare computation helpers.
package pricing

import (
	"math"

	"towline/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometres between two
// waypoints specified in decimal degrees. A waypoint without coordinates
// (address-only) contributes zero distance; no geocoding is performed.
func DistanceKm(a, b types.Waypoint) float64 {
	if !a.HasCoords() || !b.HasCoords() {
		return 0
	}
	return haversineKm(*a.Lat, *a.Lng, *b.Lat, *b.Lng)
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Fare is distance times rate, rounded half-up to two decimal places.
func Fare(distanceKm, ratePerKm float64) float64 {
	return roundHalfUp2(distanceKm * ratePerKm)
}

func roundHalfUp2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
