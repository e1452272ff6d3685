// Package geo provides the pure great-circle math behind geofence and
// impossible-travel checks. All functions are deterministic and side-effect
// free.
package geo

import (
	"math"
	"time"
)

const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point is a usable coordinate: finite and inside
// the WGS84 domain.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// IsNullIsland reports whether the point is exactly (0,0), the classic
// signature of a zeroed-out GPS payload.
func (p Point) IsNullIsland() bool {
	return p.Lat == 0 && p.Lng == 0
}

// DistanceMeters returns the haversine great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDegrees returns the initial bearing from a to b in [0, 360).
func BearingDegrees(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// SpeedKmh returns the implied travel speed between two timestamped points.
// t2 must be after t1; callers guard the elapsed time and treat a
// non-positive interval as an anomaly, so ok=false is returned instead of a
// value here.
func SpeedKmh(from, to Point, t1, t2 time.Time) (float64, bool) {
	elapsed := t2.Sub(t1)
	if elapsed <= 0 {
		return 0, false
	}
	d := DistanceMeters(from, to)
	return (d / 1000) / elapsed.Hours(), true
}
