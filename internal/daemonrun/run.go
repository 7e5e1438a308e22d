// Package daemonrun assembles and runs the dcmrelay daemon process: it
// wires the journal, metrics, notifications, receivers, and relay
// manager together, brings up the IPC control socket, and blocks until
// a signal arrives or a stop request comes in over IPC.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dcmrelay/internal/config"
	"dcmrelay/internal/daemon"
	"dcmrelay/internal/endpoint"
	"dcmrelay/internal/ipc"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/logging"
	"dcmrelay/internal/metrics"
	"dcmrelay/internal/notifications"
	"dcmrelay/internal/relay"
	"dcmrelay/internal/services/dcmtk"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
	// SocketPath overrides the control socket location when non-empty.
	SocketPath string
}

// Run boots the relay daemon and blocks until a signal arrives or the
// daemon is stopped over IPC. A failed relay start is fatal: the process
// exits instead of lingering without workers.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("dcmrelay-%s.log", runID))
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update dcmrelay.log link: %v\n", err)
	}
	cleanupOldLogs(logger, cfg, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg)
		if err != nil {
			logger.Error("open delivery journal", logging.Error(err))
			return err
		}
		defer store.Close()
		pruneJournal(signalCtx, store, cfg, logger)
	}

	client, err := dcmtk.New(cfg.StoreSCUBinary(), cfg.EchoSCUBinary())
	if err != nil {
		return fmt.Errorf("init dcmtk client: %w", err)
	}
	endpoints, err := endpoint.FromConfig(cfg, client)
	if err != nil {
		return fmt.Errorf("build endpoints: %w", err)
	}
	routes, err := relay.BuildRoutes(cfg, endpoints)
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}
	listeners, err := buildListeners(cfg)
	if err != nil {
		return fmt.Errorf("build listeners: %w", err)
	}

	notifier := notifications.NewService(cfg)
	collector := metrics.NewCollector()
	recorder := buildRecorder(store, collector, notifier, cfg, logger)

	manager := relay.NewManager(cfg, routes, listeners, logger, relay.WithRecorder(recorder))

	daemonOpts := []daemon.Option{
		daemon.WithNotifier(notifier),
		daemon.WithMetricsHandler(collector.Handler()),
	}
	if store != nil {
		daemonOpts = append(daemonOpts, daemon.WithJournal(store))
	}
	d, err := daemon.New(cfg, manager, endpoints, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, inbox access, and the instance lock"),
		)
		return err
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		stopErr := d.Stop(context.Background())
		if stopErr != nil {
			logger.Error("daemon stop after IPC failure", logging.Error(stopErr))
		}
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
		logger.Info("dcmrelay daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_signal"))
		return d.Stop(context.Background())
	case <-d.Done():
		// Stopped over IPC; the RPC handler already ran the shutdown.
		return nil
	}
}

// buildListeners constructs one storescp receiver per configured listener.
func buildListeners(cfg *config.Config) ([]relay.Listener, error) {
	listeners := make([]relay.Listener, 0, len(cfg.Listeners))
	for _, spec := range cfg.Listeners {
		receiver, err := dcmtk.NewReceiver(dcmtk.ReceiverSpec{
			Name:      spec.Name,
			AE:        spec.AE,
			Port:      spec.Port,
			OutputDir: spec.Output,
			Binary:    cfg.StoreSCPBinary(),
		})
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, receiver)
	}
	return listeners, nil
}

// buildRecorder fans delivery outcomes out to the journal, Prometheus
// metrics, and failure notifications.
func buildRecorder(store *journal.Store, collector *metrics.Collector, notifier notifications.Service, cfg *config.Config, logger *slog.Logger) relay.Recorder {
	recorders := make([]relay.Recorder, 0, 3)
	if store != nil {
		recorders = append(recorders, journal.NewRecorder(store, logger))
	}
	if collector != nil {
		recorders = append(recorders, collector)
	}
	if notifier != nil {
		window := time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second
		recorders = append(recorders, notifications.NewRecorder(notifier, window, logger))
	}
	return relay.MultiRecorder(recorders...)
}

func pruneJournal(ctx context.Context, store *journal.Store, cfg *config.Config, logger *slog.Logger) {
	if cfg.Journal.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().Add(-time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour)
	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check journal database permissions"),
			logging.String(logging.FieldImpact, "old delivery records accumulate"),
		)
		return
	}
	if removed > 0 {
		logger.Info("journal pruned",
			logging.Int64("removed", removed),
			logging.Int("retention_days", cfg.Journal.RetentionDays))
	}
}

func cleanupOldLogs(logger *slog.Logger, cfg *config.Config, currentLog string) {
	if cfg.Logging.RetentionDays <= 0 {
		return
	}
	maxAge := time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
	removed, err := logging.CleanupOldLogs([]logging.RetentionTarget{
		{Dir: cfg.Paths.LogDir, Pattern: "dcmrelay-*.log", Exclude: []string{currentLog}},
	}, maxAge, time.Now())
	if err != nil {
		logging.WarnWithContext(logger, "log cleanup failed", "log_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check file permissions and log_dir ownership"),
			logging.String(logging.FieldImpact, "old log files accumulate"),
		)
		return
	}
	if removed > 0 {
		logger.Info("old logs removed", logging.Int("removed", removed))
	}
}

// ensureCurrentLogPointer keeps LogDir/dcmrelay.log pointing at the
// newest run log so `dcmrelay logs` and humans find it in one place.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "dcmrelay.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
