package service

import (
	"testing"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testAttempt() *models.CheckInAttempt {
	return &models.CheckInAttempt{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		WorkLocationID:    uuid.New(),
		ShiftCode:         "morning",
		Operation:         models.OpCheckIn,
		Timestamp:         time.Date(2025, 3, 10, 7, 5, 0, 0, time.UTC),
		Latitude:          -6.2088,
		Longitude:         106.8456,
		AccuracyMeters:    12,
		DeviceFingerprint: "fp-android-001",
	}
}

func TestEvaluateCleanAttempt(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	score, reasons := engine.Evaluate(testAttempt(), cfg, nil)
	require.Zero(t, score)
	require.Empty(t, reasons)
}

func TestEvaluateMockLocationPlusFakeApp(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	attempt.MockLocationEnabled = true
	attempt.InstalledFakeGPSPackages = []string{"com.lexa.fakegps"}

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Equal(t, 55, score, "mock location 25 + fake app 30")
	require.Len(t, reasons, 2)
}

func TestEvaluateDisabledConfigScoresZero(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()
	cfg.Enabled = false

	attempt := testAttempt()
	attempt.MockLocationEnabled = true
	attempt.DeveloperModeEnabled = true

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Zero(t, score)
	require.Empty(t, reasons)
}

func TestEvaluateDisabledDetectorSkipped(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()
	cfg.Detectors.MockLocation = false

	attempt := testAttempt()
	attempt.MockLocationEnabled = true

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Zero(t, score)
	require.Empty(t, reasons)
}

func TestEvaluateWhitelistedDevice(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()
	cfg.WhitelistedDevices = []string{"fp-android-001"}

	attempt := testAttempt()
	attempt.MockLocationEnabled = true
	attempt.DeveloperModeEnabled = true
	attempt.DeviceIntegrityFlags = []string{"root"}

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Zero(t, score)
	require.Equal(t, []string{"whitelisted"}, reasons)
}

func TestEvaluateWhitelistedIPExactAndCIDR(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()
	cfg.WhitelistedIPs = []string{"10.1.2.3", "192.168.10.0/24"}

	attempt := testAttempt()
	attempt.MockLocationEnabled = true

	attempt.IPAddress = "10.1.2.3"
	score, _ := engine.Evaluate(attempt, cfg, nil)
	require.Zero(t, score)

	attempt.IPAddress = "192.168.10.57"
	score, _ = engine.Evaluate(attempt, cfg, nil)
	require.Zero(t, score)

	attempt.IPAddress = "192.168.11.1"
	score, _ = engine.Evaluate(attempt, cfg, nil)
	require.Equal(t, cfg.Weights.MockLocation, score)
}

func TestEvaluateFakeAppMatchIsExact(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	attempt.InstalledFakeGPSPackages = []string{"COM.LEXA.FAKEGPS", "com.lexa.fakegps.pro"}

	score, _ := engine.Evaluate(attempt, cfg, nil)
	require.Zero(t, score, "case and substring variants must not match")
}

func TestEvaluateImpossibleTravel(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	// Prior sample ~43km away, 60 seconds earlier: several thousand km/h.
	prior := &models.TravelSample{
		UserID:     attempt.UserID,
		Latitude:   -6.5971,
		Longitude:  106.8060,
		RecordedAt: attempt.Timestamp.Add(-time.Minute),
		Version:    3,
	}

	score, reasons := engine.Evaluate(attempt, cfg, prior)
	require.Equal(t, cfg.Weights.ImpossibleTravel, score)
	require.Len(t, reasons, 1)
	require.Contains(t, reasons[0], "impossible travel speed")
}

func TestEvaluateImpossibleTravelSkippedWithoutPrior(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	score, _ := engine.Evaluate(testAttempt(), cfg, nil)
	require.Zero(t, score)
}

func TestEvaluateImpossibleTravelBelowMinInterval(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()
	cfg.Movement.MinTimeBetweenLocations = 30

	attempt := testAttempt()
	prior := &models.TravelSample{
		UserID:     attempt.UserID,
		Latitude:   -6.5971,
		Longitude:  106.8060,
		RecordedAt: attempt.Timestamp.Add(-10 * time.Second),
		Version:    1,
	}

	score, _ := engine.Evaluate(attempt, cfg, prior)
	require.Zero(t, score, "samples closer than the minimum interval carry no speed signal")
}

func TestEvaluatePlausibleTravelNotFlagged(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	// Same ~43km gap over an hour: around 43 km/h.
	prior := &models.TravelSample{
		UserID:     attempt.UserID,
		Latitude:   -6.5971,
		Longitude:  106.8060,
		RecordedAt: attempt.Timestamp.Add(-time.Hour),
		Version:    1,
	}

	score, _ := engine.Evaluate(attempt, cfg, prior)
	require.Zero(t, score)
}

func TestEvaluateNullIsland(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	attempt.Latitude = 0
	attempt.Longitude = 0

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Equal(t, cfg.Weights.CoordinateAnomaly, score)
	require.Contains(t, reasons[0], "(0,0)")
}

func TestEvaluateSuspiciouslyPreciseAccuracy(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	attempt.AccuracyMeters = 0.5

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Equal(t, cfg.Weights.CoordinateAnomaly, score)
	require.Contains(t, reasons[0], "suspiciously precise")
}

func TestEvaluateDeviceIntegrity(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	attempt.DeviceIntegrityFlags = []string{"root", "emulator"}

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Equal(t, cfg.Weights.DeviceIntegrity, score)
	require.Contains(t, reasons[0], "root, emulator")
}

func TestEvaluateScoreClampedAt100(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	attempt.MockLocationEnabled = true
	attempt.DeveloperModeEnabled = true
	attempt.InstalledFakeGPSPackages = []string{"com.lexa.fakegps"}
	attempt.DeviceIntegrityFlags = []string{"root"}
	attempt.Latitude = 0
	attempt.Longitude = 0

	// 25+30+10+20+30 = 115 before clamping.
	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Equal(t, 100, score)
	require.Len(t, reasons, 5)
}

func TestEvaluateBackwardsClockSurfacedNotScored(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	attempt := testAttempt()
	prior := &models.TravelSample{
		UserID:     attempt.UserID,
		Latitude:   -6.5971,
		Longitude:  106.8060,
		RecordedAt: attempt.Timestamp.Add(time.Minute),
		Version:    1,
	}

	score, reasons := engine.Evaluate(attempt, cfg, prior)
	require.Zero(t, score)
	require.Len(t, reasons, 1)
	require.Contains(t, reasons[0], "impossible-travel failed, contributed no score")
}

func TestRunDetectorIsolatesPanic(t *testing.T) {
	triggered, reason := runDetector(detector{
		name:    "exploding",
		enabled: true,
		weight:  40,
		eval: func() (bool, string, error) {
			panic("malformed payload")
		},
	})
	require.False(t, triggered)
	require.Contains(t, reason, "contributed no score")
}

func TestEvaluateDetectorFailureDoesNotAbort(t *testing.T) {
	engine := NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()

	// nil slice access inside fake-app matching cannot panic, so the only
	// runtime failure path is a nil config list; make sure the other
	// detectors still contribute around a no-op one.
	attempt := testAttempt()
	attempt.MockLocationEnabled = true
	attempt.InstalledFakeGPSPackages = nil

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Equal(t, cfg.Weights.MockLocation, score)
	require.Len(t, reasons, 1)
}
