package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"dcmrelay/internal/config"
	"dcmrelay/internal/deps"
	"dcmrelay/internal/endpoint"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/logging"
	"dcmrelay/internal/notifications"
	"dcmrelay/internal/preflight"
	"dcmrelay/internal/relay"
	"dcmrelay/internal/watch"
)

// ErrJournalDisabled is returned by History when no journal store was
// configured.
var ErrJournalDisabled = errors.New("delivery journal disabled")

// Daemon coordinates the relay services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	manager   *relay.Manager
	endpoints map[string]endpoint.Endpoint
	journal   *journal.Store
	notifier  notifications.Service
	metrics   http.Handler
	api       *apiServer
	logPath   string

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	watcher  *watch.Watcher
	running  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Relay        relay.Status
	LockPath     string
	JournalPath  string
	JournalStats map[string]int
	Dependencies []deps.Status
}

// Option customizes daemon construction.
type Option func(*Daemon)

// WithJournal attaches a delivery journal store. The daemon reads from
// it for history and status; it does not own the store's lifecycle.
func WithJournal(store *journal.Store) Option {
	return func(d *Daemon) {
		d.journal = store
	}
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(service notifications.Service) Option {
	return func(d *Daemon) {
		if service != nil {
			d.notifier = service
		}
	}
}

// WithMetricsHandler exposes the given handler at /metrics on the HTTP
// API.
func WithMetricsHandler(handler http.Handler) Option {
	return func(d *Daemon) {
		d.metrics = handler
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, manager *relay.Manager, endpoints map[string]endpoint.Endpoint, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("daemon requires config and relay manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		manager:   manager,
		endpoints: endpoints,
		notifier:  notifications.NewService(cfg),
		logPath:   filepath.Join(cfg.Paths.LogDir, "dcmrelay.log"),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, d.metrics, logger)
	return d, nil
}

// Start acquires the instance lock and brings the relay up: listeners
// first, then the route workers, the inbox watcher, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another dcmrelay instance is already running (lock %s)", d.lockPath)
	}

	d.logPreflight()

	if err := d.manager.Start(); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start relay: %w", err)
	}

	d.startWatcher()

	if err := d.api.start(ctx); err != nil {
		d.logger.Warn("api server failed to start",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_start_failed"),
			logging.String(logging.FieldImpact, "status and metrics endpoints unavailable"),
		)
	}

	d.running.Store(true)
	d.logger.Info("dcmrelay daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	d.publish(ctx, notifications.EventStartup, notifications.Payload{
		"listeners": strconv.Itoa(len(d.cfg.Listeners)),
		"routes":    strconv.Itoa(len(d.cfg.Routes)),
	})
	return nil
}

// Stop shuts the relay down and releases the instance lock. In-flight
// delivery batches complete before workers exit, so Stop blocks until
// the relay has drained. A partial stop is reported both through the
// returned error and as a notification.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}

	if d.watcher != nil {
		d.watcher.Stop()
		d.watcher = nil
	}
	d.api.stop()

	err := d.manager.Stop()
	if errors.Is(err, relay.ErrNotRunning) {
		err = nil
	}

	var partial *relay.PartialStopError
	if errors.As(err, &partial) {
		d.publish(ctx, notifications.EventPartialStop, notifications.Payload{
			"workers": strconv.Itoa(partial.Workers),
		})
	} else {
		d.publish(ctx, notifications.EventShutdown, nil)
	}

	if unlockErr := d.lock.Unlock(); unlockErr != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
	}
	d.running.Store(false)
	d.doneOnce.Do(func() { close(d.done) })

	if err != nil {
		d.logger.Error("dcmrelay daemon stopped with errors",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_stopped"),
		)
		return err
	}
	d.logger.Info("dcmrelay daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
	return nil
}

// Close stops the daemon if it is still running.
func (d *Daemon) Close() error {
	return d.Stop(context.Background())
}

// Running reports whether Start has succeeded and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Done is closed once the daemon has fully stopped. The run loop waits
// on it so a stop request over the control socket ends the process.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// History returns persisted delivery outcomes matching the query.
func (d *Daemon) History(ctx context.Context, query journal.Query) ([]journal.Entry, error) {
	if d.journal == nil {
		return nil, ErrJournalDisabled
	}
	return d.journal.History(ctx, query)
}

// PingEndpoints probes every configured endpoint for reachability.
func (d *Daemon) PingEndpoints(ctx context.Context) []preflight.Result {
	return preflight.CheckEndpoints(ctx, d.endpoints)
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr returns the bound HTTP API address, or empty when disabled.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Relay:        d.manager.Status(),
		LockPath:     d.lockPath,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
		if stats, err := d.journal.Stats(ctx); err == nil {
			status.JournalStats = stats
		}
	}
	return status
}

func (d *Daemon) logPreflight() {
	for _, result := range preflight.Failed(preflight.RunAll(d.cfg)) {
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
		)
	}
	if missing := deps.MissingRequired(preflight.CheckSystemDeps(d.cfg)); len(missing) > 0 {
		d.logger.Warn("required tools missing",
			logging.String("missing", strings.Join(missing, ", ")),
			logging.String(logging.FieldEventType, "deps_missing"),
			logging.String(logging.FieldErrorHint, "install DCMTK and make sure its binaries are on PATH"),
			logging.String(logging.FieldImpact, "listeners or deliveries will fail"),
		)
	}
}

// startWatcher hooks every route inbox into a filesystem watcher so new
// files cut the idle wait short. Watch failures only cost latency;
// workers keep polling regardless.
func (d *Daemon) startWatcher() {
	watcher, err := watch.New(d.logger)
	if err != nil {
		d.logger.Warn("inbox watcher unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "watch_unavailable"),
			logging.String(logging.FieldImpact, "workers fall back to idle polling"),
		)
		return
	}
	for _, worker := range d.manager.Workers() {
		if err := watcher.Watch(worker.Route().Dir, worker); err != nil {
			d.logger.Warn("failed to watch inbox",
				logging.Error(err),
				logging.String(logging.FieldRoute, worker.Route().Name),
				logging.String(logging.FieldEventType, "watch_add_failed"),
			)
		}
	}
	watcher.Start()
	d.watcher = watcher
}

func (d *Daemon) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := d.notifier.Publish(ctx, event, payload); err != nil {
		d.logger.Warn("notification failed",
			logging.Error(err),
			logging.String("event", string(event)),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
}
