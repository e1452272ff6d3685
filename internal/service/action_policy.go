package service

import (
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
)

// ActionPolicy maps a score onto the configured enforcement ladder and
// describes the suspension a blocked action carries. It decides; applying
// the suspension is the evaluator's job.
type ActionPolicy struct{}

func NewActionPolicy() *ActionPolicy {
	return &ActionPolicy{}
}

// Decision is the policy outcome for one attempt.
type Decision struct {
	Action models.EnforcementAction

	// AutoBlock is set when the action is blocked and the config enables
	// automatic suspension.
	AutoBlock           bool
	BlockDuration       time.Duration
	RequireAdminUnblock bool
}

func (p *ActionPolicy) Decide(score int, cfg *models.DetectionConfig) Decision {
	var action models.EnforcementAction
	switch {
	case score >= cfg.Actions.Blocked:
		action = models.ActionBlocked
	case score >= cfg.Actions.Flagged:
		action = models.ActionFlagged
	case score >= cfg.Actions.Warning:
		action = models.ActionWarning
	default:
		action = models.ActionAllow
	}

	d := Decision{Action: action}
	if action == models.ActionBlocked && cfg.AutoBlock.Enabled {
		d.AutoBlock = true
		d.BlockDuration = time.Duration(cfg.AutoBlock.BlockDurationHours) * time.Hour
		d.RequireAdminUnblock = cfg.AutoBlock.RequireAdminUnblock
	}
	return d
}
