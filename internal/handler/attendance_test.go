package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/service"

	"github.com/stretchr/testify/require"
)

func TestClientIPStripsPortOnDirectConnection(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/attendance/check-in", nil)
	r.RemoteAddr = "203.0.113.9:41234"

	require.Equal(t, "203.0.113.9", clientIP(r))
}

func TestClientIPKeepsRealIPResolvedAddress(t *testing.T) {
	// Behind the RealIP middleware RemoteAddr is already the bare client
	// address; it must pass through untouched.
	r := httptest.NewRequest("POST", "/api/v1/attendance/check-in", nil)
	r.RemoteAddr = "203.0.113.9"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	require.Equal(t, "203.0.113.9", clientIP(r))
}

func TestClientIPFeedsWhitelistMatch(t *testing.T) {
	engine := service.NewDetectionEngine()
	cfg := models.DefaultDetectionConfig()
	cfg.WhitelistedIPs = []string{"203.0.113.9"}

	r := httptest.NewRequest("POST", "/api/v1/attendance/check-in", nil)
	r.RemoteAddr = "203.0.113.9:41234"

	attempt := &models.CheckInAttempt{
		ShiftCode:           "morning",
		Operation:           models.OpCheckIn,
		Latitude:            -6.2088,
		Longitude:           106.8456,
		AccuracyMeters:      12,
		DeviceFingerprint:   "fp-android-001",
		IPAddress:           clientIP(r),
		MockLocationEnabled: true,
	}

	score, reasons := engine.Evaluate(attempt, cfg, nil)
	require.Zero(t, score)
	require.Equal(t, []string{"whitelisted"}, reasons)
}
