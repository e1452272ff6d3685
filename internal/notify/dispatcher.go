// Package notify decides whether a scored attempt warrants an alert and
// hands it to the delivery side. Delivery mechanics (mail, push) live in the
// notification service; this side only publishes the event.
package notify

import (
	"context"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/telemetry"
	"github.com/KlinikCare/attendance-service/internal/util/logger"
)

// Dispatcher receives every non-allow outcome together with the active
// notification toggles.
type Dispatcher interface {
	Dispatch(ctx context.Context, res *models.DetectionResult, toggles models.NotificationToggles)
}

// publisher is the slice of the kafka shipper the dispatcher needs.
type publisher interface {
	Publish(ev any)
}

type kafkaDispatcher struct {
	pub publisher
}

func NewKafkaDispatcher(pub publisher) Dispatcher {
	return &kafkaDispatcher{pub: pub}
}

func (d *kafkaDispatcher) Dispatch(ctx context.Context, res *models.DetectionResult, toggles models.NotificationToggles) {
	if res.Action == models.ActionAllow {
		return
	}
	if toggles.SendCriticalOnly && res.Level != models.RiskCritical {
		return
	}

	var channels []string
	if toggles.SendEmailAlerts {
		channels = append(channels, "email")
	}
	if toggles.SendRealtimeAlerts {
		channels = append(channels, "realtime")
	}
	if len(channels) == 0 {
		return
	}

	d.pub.Publish(telemetry.AlertEvent{
		Timestamp:  time.Now().UTC(),
		UserID:     res.UserID.String(),
		Action:     string(res.Action),
		Level:      string(res.Level),
		Score:      res.Score,
		Reasons:    res.Reasons,
		Recipients: toggles.Recipients,
		Channels:   channels,
	})
}

// NopDispatcher drops every alert; used when notifications are disabled.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(ctx context.Context, res *models.DetectionResult, toggles models.NotificationToggles) {
	logger.Debug("alert suppressed (notifications disabled): user=%s action=%s", res.UserID, res.Action)
}
