package journal

import (
	"context"
	"log/slog"

	"dcmrelay/internal/logging"
	"dcmrelay/internal/relay"
)

// Recorder adapts the store to the relay's delivery observer. Journal
// failures are logged and swallowed; the relay never blocks on
// bookkeeping.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder wraps the store for use by relay workers.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{
		store:  store,
		logger: logging.NewComponentLogger(logger, "journal"),
	}
}

func (r *Recorder) RecordDelivery(ctx context.Context, delivery relay.Delivery) {
	entry := Entry{
		OccurredAt: delivery.At,
		Route:      delivery.Route,
		BatchID:    delivery.BatchID,
		File:       delivery.File,
		Endpoint:   delivery.Endpoint,
		Outcome:    string(delivery.Outcome),
		Detail:     delivery.Detail,
		Duration:   delivery.Duration,
	}
	if err := r.store.Record(ctx, entry); err != nil {
		r.logger.Warn("journal write failed",
			logging.Error(err),
			logging.String(logging.FieldRoute, delivery.Route),
			logging.String(logging.FieldEndpoint, delivery.Endpoint),
			logging.String(logging.FieldEventType, "journal_write_failed"),
			logging.String(logging.FieldImpact, "delivery history incomplete"),
		)
	}
}
