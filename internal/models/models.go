package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel is the qualitative band a spoofing score falls into.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// EnforcementAction is the outcome applied to a check-in attempt.
type EnforcementAction string

const (
	ActionAllow   EnforcementAction = "allow"
	ActionWarning EnforcementAction = "warning"
	ActionFlagged EnforcementAction = "flagged"
	ActionBlocked EnforcementAction = "blocked"
)

// Rank orders actions by severity so callers can apply a minimum floor.
func (a EnforcementAction) Rank() int {
	switch a {
	case ActionAllow:
		return 0
	case ActionWarning:
		return 1
	case ActionFlagged:
		return 2
	case ActionBlocked:
		return 3
	}
	return 0
}

// DeviceStatus mirrors the persisted user_devices.status column.
type DeviceStatus string

const (
	DeviceActive    DeviceStatus = "active"
	DeviceSuspended DeviceStatus = "suspended"
	DeviceRevoked   DeviceStatus = "revoked"
)

// GeofenceMode selects how strictly reported GPS accuracy is enforced.
type GeofenceMode string

const (
	GeofenceStrict   GeofenceMode = "strict"
	GeofenceFlexible GeofenceMode = "flexible"
)

// AttendanceOp distinguishes check-in from check-out; the shift tolerance
// window differs between the two.
type AttendanceOp string

const (
	OpCheckIn  AttendanceOp = "check_in"
	OpCheckOut AttendanceOp = "check_out"
)

// CheckInAttempt is one attendance request with every signal the client
// reported. Built once per request and immutable after scoring.
type CheckInAttempt struct {
	ID                uuid.UUID    `json:"id"`
	UserID            uuid.UUID    `json:"user_id"`
	WorkLocationID    uuid.UUID    `json:"work_location_id"`
	ShiftCode         string       `json:"shift_code"`
	Operation         AttendanceOp `json:"operation"`
	Timestamp         time.Time    `json:"timestamp"`
	Latitude          float64      `json:"latitude"`
	Longitude         float64      `json:"longitude"`
	AccuracyMeters    float64      `json:"accuracy_meters"`
	DeviceFingerprint string       `json:"device_fingerprint"`
	IPAddress         string       `json:"ip_address"`

	MockLocationEnabled      bool     `json:"mock_location_enabled"`
	DeveloperModeEnabled     bool     `json:"developer_mode_enabled"`
	InstalledFakeGPSPackages []string `json:"installed_fake_gps_packages"`
	DeviceIntegrityFlags     []string `json:"device_integrity_flags"` // root, jailbreak, emulator
}

// DetectionResult is the combined verdict for one attempt. Written once,
// never mutated, purged after the config's retention window.
type DetectionResult struct {
	ID                uuid.UUID         `json:"id"`
	AttemptID         uuid.UUID         `json:"attempt_id"`
	UserID            uuid.UUID         `json:"user_id"`
	Score             int               `json:"score"`
	Level             RiskLevel         `json:"level"`
	Action            EnforcementAction `json:"action"`
	Admissible        bool              `json:"admissible"`
	InGeofence        bool              `json:"in_geofence"`
	WithinShiftWindow bool              `json:"within_shift_window"`
	Reasons           []string          `json:"reasons"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Shift is a named work interval expressed as wall-clock "15:04" strings.
type Shift struct {
	Code  string `json:"code" yaml:"code"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Window resolves the shift's nominal start/end on the given day. Shifts
// that wrap midnight end on the following day.
func (s Shift) Window(day time.Time) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("15:04", s.Start, day.Location())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation("15:04", s.End, day.Location())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	startAt := time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, day.Location())
	endAt := time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, day.Location())
	if !endAt.After(startAt) {
		endAt = endAt.AddDate(0, 0, 1)
	}
	return startAt, endAt, nil
}

// WorkLocation is owned by location management; this service only reads it.
type WorkLocation struct {
	ID                  uuid.UUID    `json:"id"`
	Name                string       `json:"name"`
	Latitude            float64      `json:"latitude"`
	Longitude           float64      `json:"longitude"`
	RadiusMeters        float64      `json:"radius_meters"`
	GPSAccuracyRequired float64      `json:"gps_accuracy_required"`
	Mode                GeofenceMode `json:"mode"`
	Shifts              []Shift      `json:"shifts"`

	LateCheckInMinutes       int `json:"late_checkin_minutes"`
	EarlyCheckoutMinutes     int `json:"early_checkout_minutes"`
	PreShiftCheckInMinutes   int `json:"pre_shift_checkin_minutes"`
	PostShiftCheckoutMinutes int `json:"post_shift_checkout_minutes"`
}

// ShiftByCode returns the named shift, or false when the code is not part
// of the location's allowed shift set.
func (w *WorkLocation) ShiftByCode(code string) (Shift, bool) {
	for _, s := range w.Shifts {
		if s.Code == code {
			return s, true
		}
	}
	return Shift{}, false
}

// UserDevice is one registered device. Invariant: per user at most one row
// with active=true AND primary=true.
type UserDevice struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Fingerprint string       `json:"fingerprint"`
	Platform    string       `json:"platform"`
	Label       string       `json:"label"`
	Active      bool         `json:"active"`
	Primary     bool         `json:"primary"`
	Status      DeviceStatus `json:"status"`
	VerifiedAt  *time.Time   `json:"verified_at"`
	LastLoginAt *time.Time   `json:"last_login_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TravelSample is the last accepted position for a user, used to derive the
// implied speed of the next attempt. One current row per user; Version backs
// the conditional update that keeps concurrent check-ins from both reading a
// stale sample.
type TravelSample struct {
	UserID     uuid.UUID `json:"user_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
	Version    int64     `json:"version"`
}

// UserBlock is an enforcement suspension produced by auto-block. Blocks that
// require admin unblock ignore ExpiresAt until explicitly lifted.
type UserBlock struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              uuid.UUID  `json:"user_id"`
	Reason              string     `json:"reason"`
	BlockedAt           time.Time  `json:"blocked_at"`
	ExpiresAt           *time.Time `json:"expires_at"`
	RequireAdminUnblock bool       `json:"require_admin_unblock"`
	LiftedAt            *time.Time `json:"lifted_at"`
	LiftedBy            *uuid.UUID `json:"lifted_by"`
}

// InEffect reports whether the block still applies at the given instant.
func (b *UserBlock) InEffect(now time.Time) bool {
	if b.LiftedAt != nil {
		return false
	}
	if b.RequireAdminUnblock {
		return true
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}
