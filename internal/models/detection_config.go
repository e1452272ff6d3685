package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure so callers can keep the
// previous config authoritative with a single errors.Is check.
var ErrInvalidConfig = errors.New("invalid detection config")

var validate = validator.New()

// DetectorToggles enables or disables each spoofing signal independently.
type DetectorToggles struct {
	MockLocation      bool `json:"mock_location" yaml:"mock_location"`
	FakeApp           bool `json:"fake_app" yaml:"fake_app"`
	DeveloperMode     bool `json:"developer_mode" yaml:"developer_mode"`
	ImpossibleTravel  bool `json:"impossible_travel" yaml:"impossible_travel"`
	CoordinateAnomaly bool `json:"coordinate_anomaly" yaml:"coordinate_anomaly"`
	DeviceIntegrity   bool `json:"device_integrity" yaml:"device_integrity"`
}

// DetectionWeights is the score each triggered detector contributes.
type DetectionWeights struct {
	MockLocation      int `json:"mock_location" yaml:"mock_location" validate:"gte=0,lte=100"`
	FakeApp           int `json:"fake_app" yaml:"fake_app" validate:"gte=0,lte=100"`
	DeveloperMode     int `json:"developer_mode" yaml:"developer_mode" validate:"gte=0,lte=100"`
	ImpossibleTravel  int `json:"impossible_travel" yaml:"impossible_travel" validate:"gte=0,lte=100"`
	CoordinateAnomaly int `json:"coordinate_anomaly" yaml:"coordinate_anomaly" validate:"gte=0,lte=100"`
	DeviceIntegrity   int `json:"device_integrity" yaml:"device_integrity" validate:"gte=0,lte=100"`
}

// RiskBands holds the lower bounds of medium/high/critical; scores below Low
// are low risk. Must be strictly increasing.
type RiskBands struct {
	Low    int `json:"low" yaml:"low" validate:"gte=0,lte=100"`
	Medium int `json:"medium" yaml:"medium" validate:"gte=0,lte=100"`
	High   int `json:"high" yaml:"high" validate:"gte=0,lte=100"`
}

// ActionThresholds escalate warning -> flagged -> blocked; each must be at
// least the previous one.
type ActionThresholds struct {
	Warning int `json:"warning" yaml:"warning" validate:"gte=0,lte=100"`
	Flagged int `json:"flagged" yaml:"flagged" validate:"gte=0,lte=100"`
	Blocked int `json:"blocked" yaml:"blocked" validate:"gte=0,lte=100"`
}

// MovementLimits bound the impossible-travel and coordinate-anomaly checks.
type MovementLimits struct {
	MaxTravelSpeedKmh       float64 `json:"max_travel_speed_kmh" yaml:"max_travel_speed_kmh" validate:"gt=0"`
	MinTimeBetweenLocations int     `json:"min_time_between_locations" yaml:"min_time_between_locations" validate:"gte=0"` // seconds
	AccuracyThresholdMeters float64 `json:"accuracy_threshold_meters" yaml:"accuracy_threshold_meters" validate:"gte=0"`
}

// NotificationToggles select which alert channels fire per action.
type NotificationToggles struct {
	SendEmailAlerts    bool     `json:"send_email_alerts" yaml:"send_email_alerts"`
	SendRealtimeAlerts bool     `json:"send_realtime_alerts" yaml:"send_realtime_alerts"`
	SendCriticalOnly   bool     `json:"send_critical_only" yaml:"send_critical_only"`
	Recipients         []string `json:"recipients" yaml:"recipients"`
}

// AutoBlockPolicy controls the suspension applied on a blocked action.
type AutoBlockPolicy struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	BlockDurationHours  int  `json:"block_duration_hours" yaml:"block_duration_hours" validate:"gte=0"`
	RequireAdminUnblock bool `json:"require_admin_unblock" yaml:"require_admin_unblock"`
}

// TrustedLocation whitelists a legitimate off-site duty point.
type TrustedLocation struct {
	Name         string  `json:"name" yaml:"name" validate:"required"`
	Latitude     float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters" validate:"gt=0"`
}

// DetectionConfig is the singleton detection configuration. Exactly one row
// is authoritative at a time; every mutation invalidates the cached snapshot.
type DetectionConfig struct {
	Enabled   bool             `json:"enabled" yaml:"enabled"`
	Detectors DetectorToggles  `json:"detectors" yaml:"detectors"`
	Weights   DetectionWeights `json:"weights" yaml:"weights"`
	RiskBands RiskBands        `json:"risk_bands" yaml:"risk_bands"`
	Actions   ActionThresholds `json:"action_thresholds" yaml:"action_thresholds"`
	Movement  MovementLimits   `json:"movement" yaml:"movement"`

	Notifications NotificationToggles `json:"notifications" yaml:"notifications"`
	AutoBlock     AutoBlockPolicy     `json:"auto_block" yaml:"auto_block"`

	WhitelistedIPs     []string          `json:"whitelisted_ips" yaml:"whitelisted_ips"`
	WhitelistedDevices []string          `json:"whitelisted_devices" yaml:"whitelisted_devices"`
	TrustedLocations   []TrustedLocation `json:"trusted_locations" yaml:"trusted_locations"`
	FakeGPSApps        []string          `json:"fake_gps_apps" yaml:"fake_gps_apps"`

	LogRetentionDays int       `json:"log_retention_days" yaml:"log_retention_days" validate:"gte=1"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"-"`
}

// Validate rejects a config before it can become active. Band and action
// thresholds are checked here, at load time, so the classifier and policy
// never have to tolerate a misordered set.
func (c *DetectionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !(c.RiskBands.Low < c.RiskBands.Medium && c.RiskBands.Medium < c.RiskBands.High) {
		return fmt.Errorf("%w: risk bands must be strictly increasing (low=%d medium=%d high=%d)",
			ErrInvalidConfig, c.RiskBands.Low, c.RiskBands.Medium, c.RiskBands.High)
	}
	if c.Actions.Flagged < c.Actions.Warning || c.Actions.Blocked < c.Actions.Flagged {
		return fmt.Errorf("%w: action thresholds must not decrease (warning=%d flagged=%d blocked=%d)",
			ErrInvalidConfig, c.Actions.Warning, c.Actions.Flagged, c.Actions.Blocked)
	}
	if c.Detectors.FakeApp && len(c.FakeGPSApps) == 0 {
		return fmt.Errorf("%w: fake-app detector enabled with an empty signature list", ErrInvalidConfig)
	}
	return nil
}

// DefaultDetectionConfig is the configuration seeded on first boot.
func DefaultDetectionConfig() *DetectionConfig {
	return &DetectionConfig{
		Enabled: true,
		Detectors: DetectorToggles{
			MockLocation:      true,
			FakeApp:           true,
			DeveloperMode:     true,
			ImpossibleTravel:  true,
			CoordinateAnomaly: true,
			DeviceIntegrity:   true,
		},
		Weights: DetectionWeights{
			MockLocation:      25,
			FakeApp:           30,
			DeveloperMode:     10,
			ImpossibleTravel:  35,
			CoordinateAnomaly: 20,
			DeviceIntegrity:   30,
		},
		RiskBands: RiskBands{Low: 30, Medium: 60, High: 80},
		Actions:   ActionThresholds{Warning: 40, Flagged: 60, Blocked: 80},
		Movement: MovementLimits{
			MaxTravelSpeedKmh:       120,
			MinTimeBetweenLocations: 30,
			AccuracyThresholdMeters: 5,
		},
		Notifications: NotificationToggles{
			SendEmailAlerts:    true,
			SendRealtimeAlerts: true,
		},
		AutoBlock: AutoBlockPolicy{
			Enabled:            true,
			BlockDurationHours: 24,
		},
		FakeGPSApps: []string{
			"com.lexa.fakegps",
			"com.incorporateapps.fakegps.fre",
			"com.blogspot.newapphorizons.fakegps",
			"com.theappninjas.fakegpsjoystick",
			"ru.gavrikov.mocklocations",
		},
		LogRetentionDays: 90,
	}
}
