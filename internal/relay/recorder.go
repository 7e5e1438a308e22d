package relay

import (
	"context"
	"time"
)

// Outcome classifies one delivery attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// Delivery describes one endpoint attempt for one file.
type Delivery struct {
	Route    string
	BatchID  string
	File     string
	Endpoint string
	Outcome  Outcome
	Detail   string
	Duration time.Duration
	At       time.Time
}

// Recorder observes delivery outcomes. Implementations must be safe for
// concurrent use; workers report from many goroutines.
type Recorder interface {
	RecordDelivery(ctx context.Context, delivery Delivery)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) RecordDelivery(context.Context, Delivery) {}

// MultiRecorder fans observations out to several recorders.
func MultiRecorder(recorders ...Recorder) Recorder {
	kept := make([]Recorder, 0, len(recorders))
	for _, recorder := range recorders {
		if recorder != nil {
			kept = append(kept, recorder)
		}
	}
	return multiRecorder(kept)
}

type multiRecorder []Recorder

func (m multiRecorder) RecordDelivery(ctx context.Context, delivery Delivery) {
	for _, recorder := range m {
		recorder.RecordDelivery(ctx, delivery)
	}
}
