package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dcmrelay/internal/config"
	"dcmrelay/internal/logging"
)

var (
	// ErrAlreadyRunning is returned by Start when the relay is active.
	ErrAlreadyRunning = errors.New("relay already running")
	// ErrNotRunning is returned by Stop when nothing is active.
	ErrNotRunning = errors.New("relay not running")
	// ErrPartialStop marks a shutdown that exhausted its signal budget
	// with workers still unsignaled. Signaled workers were joined; the
	// rest may still be running.
	ErrPartialStop = errors.New("relay stopped partially")
)

// PartialStopError carries the workers left unsignaled when Stop gave up.
// It matches ErrPartialStop under errors.Is.
type PartialStopError struct {
	Workers  int
	Attempts int
	Routes   []string
}

func (e *PartialStopError) Error() string {
	return fmt.Sprintf("%v: %d workers unsignaled after %d attempts (%s)",
		ErrPartialStop, e.Workers, e.Attempts, strings.Join(e.Routes, ", "))
}

func (e *PartialStopError) Unwrap() error { return ErrPartialStop }

// Listener manages one receiver process feeding an inbox directory.
// dcmtk.Receiver satisfies this.
type Listener interface {
	Name() string
	Start() error
	Stop() error
	Running() bool
	Pid() int
}

// ListenerStatus reports one listener's process state.
type ListenerStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Pid     int    `json:"pid,omitempty"`
}

// RouteStatus reports one route worker's progress.
type RouteStatus struct {
	Route     string    `json:"route"`
	Inbox     string    `json:"inbox"`
	Endpoints []string  `json:"endpoints"`
	Cycles    int       `json:"cycles"`
	Relayed   int       `json:"relayed"`
	Failed    int       `json:"failed"`
	LastScan  time.Time `json:"last_scan"`
}

// Status is a snapshot of the whole relay.
type Status struct {
	Running   bool             `json:"running"`
	Listeners []ListenerStatus `json:"listeners"`
	Routes    []RouteStatus    `json:"routes"`
}

// ManagerOption customizes manager construction.
type ManagerOption func(*Manager)

// WithRecorder installs a delivery recorder shared by all workers.
func WithRecorder(recorder Recorder) ManagerOption {
	return func(m *Manager) {
		if recorder != nil {
			m.recorder = recorder
		}
	}
}

// WithStopSignal overrides how Stop signals a worker. Used by tests to
// exercise the bounded retry protocol.
func WithStopSignal(signal func(*Worker) bool) ManagerOption {
	return func(m *Manager) {
		if signal != nil {
			m.signal = signal
		}
	}
}

// Manager owns the listeners and the per-route workers. Start launches
// everything; Stop shuts listeners down first, then signals each worker
// with a bounded number of attempts and joins the ones that accepted.
type Manager struct {
	logger          *slog.Logger
	recorder        Recorder
	signal          func(*Worker) bool
	workerOpts      WorkerOptions
	maxStopAttempts int

	listeners []Listener
	routes    []Route

	mu      sync.Mutex
	running bool
	workers []*Worker
}

// NewManager wires routes and listeners into a relay manager. Worker
// tuning and the stop budget come from the config.
func NewManager(cfg *config.Config, routes []Route, listeners []Listener, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		logger:   logging.NewComponentLogger(logger, "relay"),
		recorder: NopRecorder{},
		signal:   (*Worker).SignalStop,
		workerOpts: WorkerOptions{
			BufferSize:   cfg.Workers.BufferSize,
			MinFileAge:   cfg.Workers.MinFileAge(),
			IdleInterval: cfg.Workers.IdlePollInterval(),
		},
		maxStopAttempts: cfg.Manager.MaxStopAttempts,
		listeners:       listeners,
		routes:          routes,
	}
	if m.maxStopAttempts < 1 {
		m.maxStopAttempts = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches every listener, then one worker per route. If a
// listener fails to start the ones already running are stopped again
// and the error is returned.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	for started, listener := range m.listeners {
		if err := listener.Start(); err != nil {
			for i := started - 1; i >= 0; i-- {
				if stopErr := m.listeners[i].Stop(); stopErr != nil {
					m.logger.Error("listener stop failed during rollback",
						logging.Error(stopErr),
						logging.String(logging.FieldListener, m.listeners[i].Name()),
						logging.String(logging.FieldEventType, "listener_stop_failed"),
					)
				}
			}
			return fmt.Errorf("start listener %s: %w", listener.Name(), err)
		}
	}

	workers := make([]*Worker, 0, len(m.routes))
	for _, route := range m.routes {
		workers = append(workers, NewWorker(route, m.workerOpts, m.logger, m.recorder))
	}
	m.workers = workers
	for _, worker := range workers {
		go worker.Run()
	}
	m.running = true

	m.logger.Info("relay started",
		logging.Int("listeners", len(m.listeners)),
		logging.Int("routes", len(workers)),
		logging.String(logging.FieldEventType, "relay_started"),
	)
	return nil
}

// Stop shuts the relay down. Listeners are stopped first so no new
// files arrive while workers drain. Each worker is then signaled with
// up to the configured number of attempts; workers that accepted a
// signal are joined so their in-flight batches complete. If the budget
// runs out with workers unsignaled, Stop returns ErrPartialStop.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrNotRunning
	}

	m.logger.Info("stopping relay",
		logging.Int("workers", len(m.workers)),
		logging.String(logging.FieldEventType, "relay_stopping"),
	)

	var errs []error
	for _, listener := range m.listeners {
		if err := listener.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop listener %s: %w", listener.Name(), err))
			m.logger.Error("listener stop failed",
				logging.Error(err),
				logging.String(logging.FieldListener, listener.Name()),
				logging.String(logging.FieldEventType, "listener_stop_failed"),
			)
		}
	}

	signaled := make([]*Worker, 0, len(m.workers))
	remaining := make([]*Worker, len(m.workers))
	copy(remaining, m.workers)
	for attempt := 0; attempt < m.maxStopAttempts && len(remaining) > 0; attempt++ {
		var still []*Worker
		for _, worker := range remaining {
			if m.signal(worker) {
				signaled = append(signaled, worker)
				continue
			}
			still = append(still, worker)
		}
		remaining = still
	}

	for _, worker := range signaled {
		<-worker.Done()
	}

	m.running = false
	m.workers = nil

	if len(remaining) > 0 {
		names := make([]string, 0, len(remaining))
		for _, worker := range remaining {
			names = append(names, worker.Route().Name)
		}
		m.logger.Error("workers unsignaled after stop attempts",
			logging.Int("workers", len(remaining)),
			logging.Int("attempts", m.maxStopAttempts),
			logging.String("routes", strings.Join(names, ",")),
			logging.String(logging.FieldEventType, "relay_stop_partial"),
			logging.String(logging.FieldErrorHint, "restart the daemon to clear stuck workers"),
		)
		errs = append(errs, &PartialStopError{
			Workers:  len(remaining),
			Attempts: m.maxStopAttempts,
			Routes:   names,
		})
	} else {
		m.logger.Info("relay stopped",
			logging.String(logging.FieldEventType, "relay_stopped"),
		)
	}
	return errors.Join(errs...)
}

// Running reports whether Start has succeeded and Stop has not.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Workers returns the active workers. Empty when stopped.
func (m *Manager) Workers() []*Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	workers := make([]*Worker, len(m.workers))
	copy(workers, m.workers)
	return workers
}

// Status snapshots listener and worker state for display over IPC.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{Running: m.running}
	for _, listener := range m.listeners {
		status.Listeners = append(status.Listeners, ListenerStatus{
			Name:    listener.Name(),
			Running: listener.Running(),
			Pid:     listener.Pid(),
		})
	}
	if m.running {
		for _, worker := range m.workers {
			stats := worker.Stats()
			status.Routes = append(status.Routes, RouteStatus{
				Route:     worker.Route().Name,
				Inbox:     worker.Route().Dir,
				Endpoints: worker.Route().EndpointNames(),
				Cycles:    stats.Cycles,
				Relayed:   stats.Relayed,
				Failed:    stats.Failed,
				LastScan:  stats.LastScan,
			})
		}
		return status
	}
	for _, route := range m.routes {
		status.Routes = append(status.Routes, RouteStatus{
			Route:     route.Name,
			Inbox:     route.Dir,
			Endpoints: route.EndpointNames(),
		})
	}
	return status
}
