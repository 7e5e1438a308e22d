package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dcmrelay/internal/logging"
	"dcmrelay/internal/relay"
)

// Recorder publishes delivery failures as notifications. Repeated
// failures for the same route and endpoint are suppressed inside the
// dedup window so a down endpoint produces one alert, not one per scan.
type Recorder struct {
	service Service
	logger  *slog.Logger
	window  time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewRecorder wraps the service for use by relay workers. A window of
// zero disables deduplication.
func NewRecorder(service Service, window time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{
		service:  service,
		logger:   logging.NewComponentLogger(logger, "notifications"),
		window:   window,
		lastSent: make(map[string]time.Time),
	}
}

func (r *Recorder) RecordDelivery(ctx context.Context, delivery relay.Delivery) {
	if delivery.Outcome != relay.OutcomeFailed {
		return
	}
	if !r.shouldSend(delivery.Route, delivery.Endpoint) {
		return
	}
	err := r.service.Publish(ctx, EventDeliveryFailure, Payload{
		"route":    delivery.Route,
		"endpoint": delivery.Endpoint,
		"file":     delivery.File,
		"detail":   delivery.Detail,
	})
	if err != nil {
		r.logger.Warn("failed to publish delivery alert",
			logging.Error(err),
			logging.String(logging.FieldRoute, delivery.Route),
			logging.String(logging.FieldEndpoint, delivery.Endpoint),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
}

func (r *Recorder) shouldSend(route, endpoint string) bool {
	if r.window <= 0 {
		return true
	}
	key := route + "|" + endpoint
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.lastSent[key]; ok && now.Sub(last) < r.window {
		return false
	}
	r.lastSent[key] = now
	return true
}
