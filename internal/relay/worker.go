package relay

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"dcmrelay/internal/logging"
	"dcmrelay/internal/services"
)

// WorkerOptions tunes scan behavior for a single route worker.
type WorkerOptions struct {
	// BufferSize caps how many files one scan cycle may pick up. Zero
	// means unbounded.
	BufferSize int
	// MinFileAge is how long a file must sit unmodified before it is
	// eligible for delivery. Guards against relaying partial receives.
	MinFileAge time.Duration
	// IdleInterval is the wait between scans when the inbox is empty.
	IdleInterval time.Duration
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.BufferSize < 0 {
		o.BufferSize = 0
	}
	if o.MinFileAge < 0 {
		o.MinFileAge = 0
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = time.Second
	}
	return o
}

// WorkerStats is a point-in-time snapshot of one worker's counters.
type WorkerStats struct {
	Route    string
	Cycles   int
	Relayed  int
	Failed   int
	LastScan time.Time
}

// Worker drains one route's inbox. Each cycle collects eligible files,
// fans every file out to all route endpoints concurrently, and removes
// the source only when every endpoint confirmed delivery.
type Worker struct {
	route    Route
	opts     WorkerOptions
	logger   *slog.Logger
	recorder Recorder

	stop chan struct{}
	wake chan struct{}
	done chan struct{}

	mu    sync.Mutex
	stats WorkerStats
}

// NewWorker builds a worker for the route. The logger and recorder may
// be nil.
func NewWorker(route Route, opts WorkerOptions, logger *slog.Logger, recorder Recorder) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Worker{
		route: route,
		opts:  opts.withDefaults(),
		logger: logging.NewComponentLogger(logger, "worker").With(
			logging.String(logging.FieldRoute, route.Name)),
		recorder: recorder,
		stop:     make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stats:    WorkerStats{Route: route.Name},
	}
}

// Run scans the inbox until a stop signal is observed. Signals are
// honored only at the top of a cycle and between collection and
// delivery; a batch already in flight always completes so endpoints
// never see a half-sent file.
func (w *Worker) Run() {
	defer close(w.done)
	w.logger.Info("worker started",
		logging.String("inbox", w.route.Dir),
		logging.Int("endpoints", len(w.route.Endpoints)),
		logging.String(logging.FieldEventType, "worker_started"),
	)

	for {
		if w.shouldStop() {
			w.logStopped()
			return
		}

		files, skipped := collectFiles(w.route.Dir, w.opts.BufferSize, w.opts.MinFileAge, time.Now())
		w.noteScan()
		if skipped > 0 {
			w.logger.Warn("unreadable inbox entries skipped",
				logging.Int("entries", skipped),
				logging.String(logging.FieldEventType, "scan_entries_skipped"),
				logging.String(logging.FieldErrorHint, "check inbox permissions"),
			)
		}

		if w.shouldStop() {
			w.logStopped()
			return
		}
		if len(files) == 0 {
			if w.waitIdle() {
				w.logStopped()
				return
			}
			continue
		}

		w.deliverBatch(files)
	}
}

// SignalStop asks the worker to stop at its next safe point. It reports
// whether the signal was accepted; false means an earlier signal has
// not been consumed yet.
func (w *Worker) SignalStop() bool {
	select {
	case w.stop <- struct{}{}:
		return true
	default:
		return false
	}
}

// Wake nudges an idle worker into an immediate scan.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Route returns the route this worker drains.
func (w *Worker) Route() Route {
	return w.route
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) shouldStop() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// waitIdle blocks until the idle interval elapses, a wake arrives, or a
// stop signal is consumed. It reports whether the worker should exit.
func (w *Worker) waitIdle() bool {
	select {
	case <-w.stop:
		return true
	case <-w.wake:
		return false
	case <-time.After(w.opts.IdleInterval):
		return false
	}
}

// deliverBatch relays every collected file concurrently. The context is
// rooted in context.Background on purpose: shutting the daemon down
// must not abort transfers already handed to an endpoint.
func (w *Worker) deliverBatch(files []string) {
	batchID := uuid.NewString()
	ctx := services.WithBatchID(services.WithRoute(context.Background(), w.route.Name), batchID)
	logger := w.logger.With(logging.String(logging.FieldBatchID, batchID))
	logger.Info("delivering batch",
		logging.Int("files", len(files)),
		logging.String(logging.FieldEventType, "batch_started"),
	)

	var wg sync.WaitGroup
	for _, path := range files {
		path := path
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.relayFile(ctx, logger, path)
		}()
	}
	wg.Wait()
}

// relayFile fans one file out to all endpoints and removes the source
// only when every delivery succeeded. A failed removal is logged and
// left for the next cycle; endpoint deliveries are idempotent so a
// redelivery is harmless.
func (w *Worker) relayFile(ctx context.Context, logger *slog.Logger, path string) {
	logger = logger.With(logging.String(logging.FieldFile, path))
	if !w.deliverAll(ctx, logger, path) {
		w.noteFailed()
		logger.Warn("keeping source after failed delivery",
			logging.String(logging.FieldEventType, "relay_incomplete"),
			logging.String(logging.FieldImpact, "file stays in the inbox and is retried next scan"),
		)
		return
	}
	if err := os.Remove(path); err != nil {
		w.noteRelayed()
		logger.Warn("failed to remove relayed file",
			logging.Error(err),
			logging.String(logging.FieldEventType, "source_remove_failed"),
			logging.String(logging.FieldErrorHint, "check inbox permissions"),
			logging.String(logging.FieldImpact, "file will be redelivered next scan"),
		)
		return
	}
	w.noteRelayed()
	logger.Info("file relayed",
		logging.Int("endpoints", len(w.route.Endpoints)),
		logging.String(logging.FieldEventType, "file_relayed"),
	)
}

// deliverAll sends the file to every endpoint concurrently and reports
// whether all deliveries succeeded.
func (w *Worker) deliverAll(ctx context.Context, logger *slog.Logger, path string) bool {
	batchID, _ := services.BatchIDFromContext(ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0
	for _, target := range w.route.Endpoints {
		target := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := target.Deliver(ctx, path)
			delivery := Delivery{
				Route:    w.route.Name,
				BatchID:  batchID,
				File:     path,
				Endpoint: target.Name(),
				Duration: time.Since(start),
				At:       time.Now().UTC(),
			}
			if err != nil {
				delivery.Outcome = OutcomeFailed
				delivery.Detail = err.Error()
				mu.Lock()
				failed++
				mu.Unlock()
				logger.Error("delivery failed",
					logging.Error(err),
					logging.String(logging.FieldEndpoint, target.Name()),
					logging.String(logging.FieldEventType, "delivery_failed"),
					logging.String(logging.FieldErrorHint, services.Hint(err)),
				)
			} else {
				delivery.Outcome = OutcomeDelivered
				logger.Info("delivery succeeded",
					logging.String(logging.FieldEndpoint, target.Name()),
					logging.Duration("duration", delivery.Duration),
				)
			}
			w.recorder.RecordDelivery(ctx, delivery)
		}()
	}
	wg.Wait()
	return failed == 0
}

func (w *Worker) noteScan() {
	w.mu.Lock()
	w.stats.Cycles++
	w.stats.LastScan = time.Now().UTC()
	w.mu.Unlock()
}

func (w *Worker) noteRelayed() {
	w.mu.Lock()
	w.stats.Relayed++
	w.mu.Unlock()
}

func (w *Worker) noteFailed() {
	w.mu.Lock()
	w.stats.Failed++
	w.mu.Unlock()
}

func (w *Worker) logStopped() {
	w.logger.Info("worker stopped",
		logging.String(logging.FieldEventType, "worker_stopped"),
	)
}
