package service

import (
	"fmt"
	"time"

	"github.com/KlinikCare/attendance-service/internal/geo"
	"github.com/KlinikCare/attendance-service/internal/models"
)

// GeofenceValidator decides whether an attempt's coordinates and timestamp
// are admissible for a work location. It is independent of the spoofing
// score: both checks run and fail on their own dimension.
type GeofenceValidator struct{}

func NewGeofenceValidator() *GeofenceValidator {
	return &GeofenceValidator{}
}

// GeofenceResult carries both dimensions plus the reasons for any failure.
type GeofenceResult struct {
	InGeofence        bool
	WithinShiftWindow bool
	DistanceMeters    float64
	Reasons           []string
}

// Admissible reports whether both dimensions passed.
func (r GeofenceResult) Admissible() bool {
	return r.InGeofence && r.WithinShiftWindow
}

// Validate checks the spatial and temporal admissibility of an attempt.
// Trusted locations from the detection config rescue a distance failure for
// legitimate off-site duty; nothing rescues invalid coordinates or a missed
// shift window.
func (v *GeofenceValidator) Validate(attempt *models.CheckInAttempt, loc *models.WorkLocation, cfg *models.DetectionConfig) GeofenceResult {
	res := GeofenceResult{}

	p := geo.Point{Lat: attempt.Latitude, Lng: attempt.Longitude}
	if !p.Valid() || p.IsNullIsland() {
		res.Reasons = append(res.Reasons, "invalid coordinates")
		res.WithinShiftWindow = v.withinWindow(attempt, loc, &res)
		return res
	}

	center := geo.Point{Lat: loc.Latitude, Lng: loc.Longitude}
	res.DistanceMeters = geo.DistanceMeters(p, center)

	inRadius := res.DistanceMeters <= loc.RadiusMeters
	if !inRadius {
		if name, ok := trustedLocationMatch(p, cfg); ok {
			res.InGeofence = true
			res.Reasons = append(res.Reasons, fmt.Sprintf("outside work location but within trusted location %q", name))
		} else {
			res.Reasons = append(res.Reasons, fmt.Sprintf("distance %.0fm exceeds geofence radius %.0fm", res.DistanceMeters, loc.RadiusMeters))
		}
	} else {
		res.InGeofence = true
	}

	// Strict mode also distrusts coarse fixes: a reading inside the radius
	// with accuracy worse than required cannot be trusted to be inside.
	if res.InGeofence && loc.Mode == models.GeofenceStrict &&
		loc.GPSAccuracyRequired > 0 && attempt.AccuracyMeters > loc.GPSAccuracyRequired {
		res.InGeofence = false
		res.Reasons = append(res.Reasons, fmt.Sprintf("GPS accuracy %.0fm is coarser than required %.0fm", attempt.AccuracyMeters, loc.GPSAccuracyRequired))
	}

	res.WithinShiftWindow = v.withinWindow(attempt, loc, &res)
	return res
}

func (v *GeofenceValidator) withinWindow(attempt *models.CheckInAttempt, loc *models.WorkLocation, res *GeofenceResult) bool {
	shift, ok := loc.ShiftByCode(attempt.ShiftCode)
	if !ok {
		res.Reasons = append(res.Reasons, fmt.Sprintf("shift %q is not allowed at this location", attempt.ShiftCode))
		return false
	}
	start, end, err := shift.Window(attempt.Timestamp)
	if err != nil {
		res.Reasons = append(res.Reasons, fmt.Sprintf("shift %q has a malformed time window", attempt.ShiftCode))
		return false
	}

	var lo, hi time.Time
	switch attempt.Operation {
	case models.OpCheckOut:
		lo = end.Add(-time.Duration(loc.EarlyCheckoutMinutes) * time.Minute)
		hi = end.Add(time.Duration(loc.PostShiftCheckoutMinutes) * time.Minute)
	default:
		lo = start.Add(-time.Duration(loc.PreShiftCheckInMinutes) * time.Minute)
		hi = start.Add(time.Duration(loc.LateCheckInMinutes) * time.Minute)
	}

	ts := attempt.Timestamp
	if ts.Before(lo) || ts.After(hi) {
		res.Reasons = append(res.Reasons, fmt.Sprintf("%s at %s is outside the allowed window %s - %s",
			attempt.Operation, ts.Format("15:04"), lo.Format("15:04"), hi.Format("15:04")))
		return false
	}
	return true
}

func trustedLocationMatch(p geo.Point, cfg *models.DetectionConfig) (string, bool) {
	for _, t := range cfg.TrustedLocations {
		center := geo.Point{Lat: t.Latitude, Lng: t.Longitude}
		if geo.DistanceMeters(p, center) <= t.RadiusMeters {
			return t.Name, true
		}
	}
	return "", false
}
