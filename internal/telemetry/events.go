package telemetry

import "time"

// CheckInAuditEvent is the append-only audit record for one scored attempt.
// Shipped asynchronously; the scoring decision never waits on it.
type CheckInAuditEvent struct {
	Timestamp         time.Time `json:"@timestamp"`
	AttemptID         string    `json:"attempt_id"`
	UserID            string    `json:"user_id"`
	WorkLocationID    string    `json:"work_location_id,omitempty"`
	Operation         string    `json:"operation"`
	Score             int       `json:"score"`
	Level             string    `json:"level"`
	Action            string    `json:"action"`
	Admissible        bool      `json:"admissible"`
	InGeofence        bool      `json:"in_geofence"`
	WithinShiftWindow bool      `json:"within_shift_window"`
	Reasons           []string  `json:"reasons,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	DurationMs        int64     `json:"duration_ms,omitempty"`
}

// AlertEvent is published for warning/flagged/blocked outcomes so the
// notification service can fan out to email and realtime channels.
type AlertEvent struct {
	Timestamp  time.Time `json:"@timestamp"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	Level      string    `json:"level"`
	Score      int       `json:"score"`
	Reasons    []string  `json:"reasons,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	Channels   []string  `json:"channels,omitempty"` // email, realtime
}
