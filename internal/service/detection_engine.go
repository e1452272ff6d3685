package service

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/KlinikCare/attendance-service/internal/geo"
	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/util/logger"
)

// DetectionEngine scores one check-in attempt against the enabled spoofing
// detectors. It is a pure function of (attempt, config, prior sample) and
// holds no state of its own.
type DetectionEngine struct{}

func NewDetectionEngine() *DetectionEngine {
	return &DetectionEngine{}
}

// detector is one weighted predicate. Evaluation failures are isolated per
// detector: a panicking or erroring predicate contributes zero and a reason
// noting the failure instead of aborting the whole evaluation.
type detector struct {
	name    string
	enabled bool
	weight  int
	eval    func() (bool, string, error)
}

// Evaluate returns the weighted spoofing score clamped to [0,100] and the
// human-readable reasons for every triggered detector. prior may be nil when
// the user has no usable travel history.
func (e *DetectionEngine) Evaluate(attempt *models.CheckInAttempt, cfg *models.DetectionConfig, prior *models.TravelSample) (int, []string) {
	if !cfg.Enabled {
		return 0, nil
	}

	// Whitelists short-circuit everything.
	if reason, ok := whitelisted(attempt, cfg); ok {
		return 0, []string{reason}
	}

	detectors := []detector{
		{
			name:    "mock-location",
			enabled: cfg.Detectors.MockLocation,
			weight:  cfg.Weights.MockLocation,
			eval: func() (bool, string, error) {
				if attempt.MockLocationEnabled {
					return true, "mock location enabled on device", nil
				}
				return false, "", nil
			},
		},
		{
			name:    "fake-gps-app",
			enabled: cfg.Detectors.FakeApp,
			weight:  cfg.Weights.FakeApp,
			eval: func() (bool, string, error) {
				return matchFakeApp(attempt.InstalledFakeGPSPackages, cfg.FakeGPSApps)
			},
		},
		{
			name:    "developer-mode",
			enabled: cfg.Detectors.DeveloperMode,
			weight:  cfg.Weights.DeveloperMode,
			eval: func() (bool, string, error) {
				if attempt.DeveloperModeEnabled {
					return true, "developer mode enabled on device", nil
				}
				return false, "", nil
			},
		},
		{
			name:    "impossible-travel",
			enabled: cfg.Detectors.ImpossibleTravel,
			weight:  cfg.Weights.ImpossibleTravel,
			eval: func() (bool, string, error) {
				return impossibleTravel(attempt, cfg, prior)
			},
		},
		{
			name:    "coordinate-anomaly",
			enabled: cfg.Detectors.CoordinateAnomaly,
			weight:  cfg.Weights.CoordinateAnomaly,
			eval: func() (bool, string, error) {
				return coordinateAnomaly(attempt, cfg)
			},
		},
		{
			name:    "device-integrity",
			enabled: cfg.Detectors.DeviceIntegrity,
			weight:  cfg.Weights.DeviceIntegrity,
			eval: func() (bool, string, error) {
				if len(attempt.DeviceIntegrityFlags) > 0 {
					return true, fmt.Sprintf("device integrity compromised: %s", strings.Join(attempt.DeviceIntegrityFlags, ", ")), nil
				}
				return false, "", nil
			},
		},
	}

	score := 0
	var reasons []string
	for _, d := range detectors {
		if !d.enabled {
			continue
		}
		triggered, reason := runDetector(d)
		if triggered {
			score += d.weight
			reasons = append(reasons, reason)
		} else if reason != "" {
			// Failed detector: no weight, but the reason is kept so the
			// result stays explainable.
			reasons = append(reasons, reason)
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, reasons
}

// runDetector isolates a single detector evaluation. The recover keeps one
// malformed signal payload from blocking all attendance.
func runDetector(d detector) (triggered bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("detector %s panicked: %v", d.name, r)
			triggered = false
			reason = fmt.Sprintf("detector %s failed, contributed no score", d.name)
		}
	}()

	ok, why, err := d.eval()
	if err != nil {
		logger.Warn("detector %s failed: %v", d.name, err)
		return false, fmt.Sprintf("detector %s failed, contributed no score", d.name)
	}
	if !ok {
		return false, ""
	}
	return true, why
}

func whitelisted(attempt *models.CheckInAttempt, cfg *models.DetectionConfig) (string, bool) {
	for _, fp := range cfg.WhitelistedDevices {
		if fp != "" && fp == attempt.DeviceFingerprint {
			return "whitelisted", true
		}
	}
	if attempt.IPAddress == "" {
		return "", false
	}
	ip := net.ParseIP(attempt.IPAddress)
	for _, entry := range cfg.WhitelistedIPs {
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, cidr, err := net.ParseCIDR(entry)
			if err == nil && ip != nil && cidr.Contains(ip) {
				return "whitelisted", true
			}
			continue
		}
		if entry == attempt.IPAddress {
			return "whitelisted", true
		}
	}
	return "", false
}

// matchFakeApp is a case-sensitive exact match on package name, per the
// signature database semantics.
func matchFakeApp(installed, database []string) (bool, string, error) {
	for _, pkg := range installed {
		for _, known := range database {
			if pkg == known {
				return true, fmt.Sprintf("known fake GPS app installed: %s", pkg), nil
			}
		}
	}
	return false, "", nil
}

// impossibleTravel fires only when a prior sample exists and the elapsed
// time reaches the configured minimum; a single isolated attempt cannot
// imply travel.
func impossibleTravel(attempt *models.CheckInAttempt, cfg *models.DetectionConfig, prior *models.TravelSample) (bool, string, error) {
	if prior == nil {
		return false, "", nil
	}
	elapsed := attempt.Timestamp.Sub(prior.RecordedAt)
	if elapsed < 0 {
		// A clock running backwards carries no speed signal; surface it as a
		// detector failure so the result stays explainable.
		return false, "", fmt.Errorf("attempt timestamp precedes prior sample by %s", -elapsed)
	}
	if elapsed < time.Duration(cfg.Movement.MinTimeBetweenLocations)*time.Second {
		return false, "", nil
	}
	speed, ok := geo.SpeedKmh(
		geo.Point{Lat: prior.Latitude, Lng: prior.Longitude},
		geo.Point{Lat: attempt.Latitude, Lng: attempt.Longitude},
		prior.RecordedAt, attempt.Timestamp,
	)
	if !ok {
		return false, "", nil
	}
	if speed > cfg.Movement.MaxTravelSpeedKmh {
		return true, fmt.Sprintf("impossible travel speed: %.0f km/h exceeds limit of %.0f km/h", speed, cfg.Movement.MaxTravelSpeedKmh), nil
	}
	return false, "", nil
}

// coordinateAnomaly flags the (0,0) null island signature and accuracy
// readings finer than any real receiver produces.
func coordinateAnomaly(attempt *models.CheckInAttempt, cfg *models.DetectionConfig) (bool, string, error) {
	p := geo.Point{Lat: attempt.Latitude, Lng: attempt.Longitude}
	if p.IsNullIsland() {
		return true, "coordinates are exactly (0,0)", nil
	}
	if cfg.Movement.AccuracyThresholdMeters > 0 &&
		attempt.AccuracyMeters > 0 &&
		attempt.AccuracyMeters < cfg.Movement.AccuracyThresholdMeters {
		return true, fmt.Sprintf("reported accuracy %.1fm is suspiciously precise (threshold %.1fm)",
			attempt.AccuracyMeters, cfg.Movement.AccuracyThresholdMeters), nil
	}
	return false, "", nil
}
