package service

import "github.com/KlinikCare/attendance-service/internal/models"

// RiskClassifier maps a spoofing score onto the configured risk bands.
// Thresholds are validated monotonic at config load time, so classification
// here is a straight comparison chain.
type RiskClassifier struct{}

func NewRiskClassifier() *RiskClassifier {
	return &RiskClassifier{}
}

func (c *RiskClassifier) Classify(score int, cfg *models.DetectionConfig) models.RiskLevel {
	switch {
	case score < cfg.RiskBands.Low:
		return models.RiskLow
	case score < cfg.RiskBands.Medium:
		return models.RiskMedium
	case score < cfg.RiskBands.High:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}
