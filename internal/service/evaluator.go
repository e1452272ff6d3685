package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/notify"
	"github.com/KlinikCare/attendance-service/internal/repository"
	"github.com/KlinikCare/attendance-service/internal/telemetry"
	"github.com/KlinikCare/attendance-service/internal/util/logger"

	"github.com/google/uuid"
)

// auditPublisher is the slice of the kafka shipper the evaluator needs.
type auditPublisher interface {
	Publish(ev any)
}

// Evaluator runs the full pipeline for one attendance attempt: geofence,
// spoofing detection, risk classification, action policy and enforcement.
// Audit and alert writes are fire-and-forget; the decision returns without
// waiting on them.
type Evaluator struct {
	store      *ConfigStore
	engine     *DetectionEngine
	classifier *RiskClassifier
	policy     *ActionPolicy
	geofence   *GeofenceValidator

	locations repository.LocationRepository
	travel    *TravelStore
	results   repository.ResultRepository
	blocks    repository.BlockRepository

	shipper    auditPublisher
	dispatcher notify.Dispatcher

	locks *keyedMutex
	now   func() time.Time
}

func NewEvaluator(
	store *ConfigStore,
	locations repository.LocationRepository,
	travel *TravelStore,
	results repository.ResultRepository,
	blocks repository.BlockRepository,
	shipper auditPublisher,
	dispatcher notify.Dispatcher,
) *Evaluator {
	return &Evaluator{
		store:      store,
		engine:     NewDetectionEngine(),
		classifier: NewRiskClassifier(),
		policy:     NewActionPolicy(),
		geofence:   NewGeofenceValidator(),
		locations:  locations,
		travel:     travel,
		results:    results,
		blocks:     blocks,
		shipper:    shipper,
		dispatcher: dispatcher,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// Evaluate scores one attempt and returns the combined verdict. A geofence
// failure makes the attempt inadmissible and floors the action at flagged;
// spoofing scoring still runs so the audit trail explains everything that
// was wrong, not just the first failure.
func (e *Evaluator) Evaluate(ctx context.Context, attempt *models.CheckInAttempt) (*models.DetectionResult, error) {
	started := e.now()
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = started
	}

	cfg := e.store.Current(ctx)

	// An unexpired suspension wins over everything else.
	block, err := e.blocks.ActiveForUser(ctx, attempt.UserID, attempt.Timestamp)
	switch {
	case err == nil:
		res := e.buildResult(attempt, 100, models.RiskCritical, models.ActionBlocked, false, false, false,
			[]string{blockReason(block)})
		e.emit(ctx, attempt, res, cfg, started)
		return res, nil
	case !errors.Is(err, repository.ErrNotFound):
		// Fail open so a storage outage does not stop all attendance, but
		// leave a trace: without it a suspended user slipping through is
		// indistinguishable from a clean one.
		logger.Error("block lookup for user %s failed, continuing without suspension check: %v", attempt.UserID, err)
	}

	loc, err := e.locations.GetByID(ctx, attempt.WorkLocationID)
	if err != nil {
		return nil, fmt.Errorf("load work location %s: %w", attempt.WorkLocationID, err)
	}

	// Per-user critical section: the travel sample must be read and
	// conditionally replaced atomically, or two concurrent check-ins would
	// both compute a low implied speed from the same stale sample.
	unlock := e.locks.Lock(attempt.UserID)
	defer unlock()

	geoRes := e.geofence.Validate(attempt, loc, cfg)

	prior := e.travel.Prior(ctx, attempt.UserID)
	score, reasons := e.engine.Evaluate(attempt, cfg, prior)
	level := e.classifier.Classify(score, cfg)
	decision := e.policy.Decide(score, cfg)

	action := decision.Action
	admissible := geoRes.Admissible()
	if !admissible {
		reasons = append(reasons, geoRes.Reasons...)
		// Geofence failure forces at least flagged, regardless of how low
		// the spoofing score is. It does not touch the score itself.
		if action.Rank() < models.ActionFlagged.Rank() {
			action = models.ActionFlagged
		}
	}

	res := e.buildResult(attempt, score, level, action, admissible,
		geoRes.InGeofence, geoRes.WithinShiftWindow, reasons)

	if action == models.ActionBlocked && decision.AutoBlock {
		if err := e.applyAutoBlock(ctx, attempt, decision, reasons); err != nil {
			logger.Error("auto-block for user %s failed: %v", attempt.UserID, err)
		}
	}

	// The travel sample advances only on accepted attempts; a rejected or
	// blocked position must not become the baseline for the next speed
	// computation.
	if admissible && action != models.ActionBlocked {
		e.travel.Record(ctx, attempt, prior)
	}

	e.emit(ctx, attempt, res, cfg, started)
	return res, nil
}

func (e *Evaluator) buildResult(
	attempt *models.CheckInAttempt,
	score int,
	level models.RiskLevel,
	action models.EnforcementAction,
	admissible, inGeofence, withinWindow bool,
	reasons []string,
) *models.DetectionResult {
	return &models.DetectionResult{
		ID:                uuid.New(),
		AttemptID:         attempt.ID,
		UserID:            attempt.UserID,
		Score:             score,
		Level:             level,
		Action:            action,
		Admissible:        admissible,
		InGeofence:        inGeofence,
		WithinShiftWindow: withinWindow,
		Reasons:           reasons,
		CreatedAt:         e.now(),
	}
}

func (e *Evaluator) applyAutoBlock(ctx context.Context, attempt *models.CheckInAttempt, d Decision, reasons []string) error {
	block := &models.UserBlock{
		ID:                  uuid.New(),
		UserID:              attempt.UserID,
		Reason:              fmt.Sprintf("auto-block after blocked check-in: %v", reasons),
		BlockedAt:           e.now(),
		RequireAdminUnblock: d.RequireAdminUnblock,
	}
	if !d.RequireAdminUnblock && d.BlockDuration > 0 {
		until := block.BlockedAt.Add(d.BlockDuration)
		block.ExpiresAt = &until
	}
	return e.blocks.Insert(ctx, block)
}

// emit persists the result and fans out audit/alert events without blocking
// the caller.
func (e *Evaluator) emit(ctx context.Context, attempt *models.CheckInAttempt, res *models.DetectionResult, cfg *models.DetectionConfig, started time.Time) {
	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.results.Insert(bctx, res); err != nil {
			logger.Error("persist detection result %s: %v", res.ID, err)
		}
	}()

	e.shipper.Publish(telemetry.CheckInAuditEvent{
		Timestamp:         res.CreatedAt.UTC(),
		AttemptID:         attempt.ID.String(),
		UserID:            attempt.UserID.String(),
		WorkLocationID:    attempt.WorkLocationID.String(),
		Operation:         string(attempt.Operation),
		Score:             res.Score,
		Level:             string(res.Level),
		Action:            string(res.Action),
		Admissible:        res.Admissible,
		InGeofence:        res.InGeofence,
		WithinShiftWindow: res.WithinShiftWindow,
		Reasons:           res.Reasons,
		DeviceFingerprint: attempt.DeviceFingerprint,
		DurationMs:        e.now().Sub(started).Milliseconds(),
	})

	e.dispatcher.Dispatch(ctx, res, cfg.Notifications)
}

// RecentResults returns the user's newest detection results for review
// surfaces and investigations.
func (e *Evaluator) RecentResults(ctx context.Context, userID uuid.UUID, limit int) ([]models.DetectionResult, error) {
	return e.results.ListByUser(ctx, userID, limit)
}

// AdminUnblock lifts every active suspension for the user. Exposed as an
// explicit operation; timed blocks expire on their own, admin-unblock ones
// only through this call.
func (e *Evaluator) AdminUnblock(ctx context.Context, userID, liftedBy uuid.UUID) error {
	return e.blocks.Lift(ctx, userID, liftedBy, e.now())
}

// ReloadConfig invalidates the cached detection config snapshot.
func (e *Evaluator) ReloadConfig(ctx context.Context) {
	e.store.Invalidate(ctx)
}

func blockReason(b *models.UserBlock) string {
	if b.RequireAdminUnblock {
		return "user is suspended pending administrative unblock"
	}
	if b.ExpiresAt != nil {
		return fmt.Sprintf("user is suspended until %s", b.ExpiresAt.Format(time.RFC3339))
	}
	return "user is suspended"
}
