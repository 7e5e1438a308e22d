package daemon_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dcmrelay/internal/config"
	"dcmrelay/internal/daemon"
	"dcmrelay/internal/endpoint"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/logging"
	"dcmrelay/internal/relay"
	"dcmrelay/internal/testsupport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t,
		testsupport.WithListener("ct", 11112),
		testsupport.WithDirectoryEndpoint("archive"),
		testsupport.WithRoute("ct", "archive"),
	)
}

// wireRelay builds the endpoint map and routes a daemon under test needs
// from the config's listener, endpoint, and route entries.
func wireRelay(t *testing.T, cfg *config.Config) (map[string]endpoint.Endpoint, []relay.Route, string, string) {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	target, err := endpoint.NewDirectory(cfg.Endpoints.Directory[0])
	if err != nil {
		t.Fatalf("NewDirectory failed: %v", err)
	}
	endpoints := map[string]endpoint.Endpoint{target.Name(): target}
	routes, err := relay.BuildRoutes(cfg, endpoints)
	if err != nil {
		t.Fatalf("BuildRoutes failed: %v", err)
	}
	inbox := testsupport.ListenerOutput(t, cfg, "ct")
	archive := testsupport.DirectoryEndpointPath(t, cfg, "archive")
	return endpoints, routes, inbox, archive
}

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) (*daemon.Daemon, string, string) {
	t.Helper()
	endpoints, routes, inbox, archive := wireRelay(t, cfg)
	manager := relay.NewManager(cfg, routes, nil, logging.NewNop())
	d, err := daemon.New(cfg, manager, endpoints, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, inbox, archive
}

func waitUntil(t *testing.T, timeout time.Duration, message string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}

type capturedNote struct {
	title string
	body  string
}

func captureNtfy(t *testing.T) (*httptest.Server, func() []capturedNote) {
	t.Helper()
	var mu sync.Mutex
	var notes []capturedNote
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		notes = append(notes, capturedNote{title: r.Header.Get("Title"), body: string(body)})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	snapshot := func() []capturedNote {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedNote, len(notes))
		copy(out, notes)
		return out
	}
	return server, snapshot
}

func TestDaemonStartStopRelaysFiles(t *testing.T) {
	cfg := testConfig(t)
	d, inbox, archive := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	source := filepath.Join(inbox, "study.dcm")
	if err := os.WriteFile(source, []byte("dicom payload"), 0o644); err != nil {
		t.Fatalf("write inbox file: %v", err)
	}
	waitUntil(t, 5*time.Second, "inbox file was not relayed", func() bool {
		_, err := os.Stat(source)
		return errors.Is(err, fs.ErrNotExist)
	})
	if _, err := os.Stat(filepath.Join(archive, "study.dcm")); err != nil {
		t.Fatalf("expected archived copy: %v", err)
	}

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if d.Running() {
		t.Fatal("expected daemon to be stopped")
	}
	select {
	case <-d.Done():
	default:
		t.Fatal("expected Done to be closed after stop")
	}
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testConfig(t)
	first, _, _ := newDaemon(t, cfg)
	second, _, _ := newDaemon(t, cfg)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	err := second.Start(ctx)
	if err == nil {
		t.Fatal("expected second instance start to fail")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict error, got %v", err)
	}

	if err := first.Stop(ctx); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release failed: %v", err)
	}
	if err := second.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestDaemonStatusIncludesJournalAndDependencies(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	d, _, _ := newDaemon(t, cfg, daemon.WithJournal(store))
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), status.PID)
	}
	if status.JournalPath != cfg.JournalPath() {
		t.Fatalf("unexpected journal path %q", status.JournalPath)
	}
	if status.LockPath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockPath)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency statuses")
	}
	if len(status.Relay.Routes) != 1 || status.Relay.Routes[0].Route != "ct" {
		t.Fatalf("unexpected relay routes: %+v", status.Relay.Routes)
	}
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestDaemonHistoryRequiresJournal(t *testing.T) {
	cfg := testConfig(t)
	d, _, _ := newDaemon(t, cfg)

	_, err := d.History(context.Background(), journal.Query{})
	if !errors.Is(err, daemon.ErrJournalDisabled) {
		t.Fatalf("expected ErrJournalDisabled, got %v", err)
	}
}

func TestDaemonHistoryReadsJournal(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	d, _, _ := newDaemon(t, cfg, daemon.WithJournal(store))
	ctx := context.Background()

	entry := journal.Entry{
		OccurredAt: time.Now().UTC(),
		Route:      "ct",
		BatchID:    "batch-1",
		File:       "/inbox/study.dcm",
		Endpoint:   "archive",
		Outcome:    string(relay.OutcomeDelivered),
		Duration:   120 * time.Millisecond,
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := d.History(ctx, journal.Query{Route: "ct"})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Endpoint != "archive" {
		t.Fatalf("unexpected history entries: %+v", entries)
	}
}

func TestDaemonTestNotification(t *testing.T) {
	cfg := testConfig(t)
	d, _, _ := newDaemon(t, cfg)
	ctx := context.Background()

	sent, message, err := d.TestNotification(ctx)
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if sent || !strings.Contains(message, "not configured") {
		t.Fatalf("expected unconfigured response, got sent=%v message=%q", sent, message)
	}

	server, notes := captureNtfy(t)
	cfg2 := testConfig(t)
	cfg2.Notifications.NtfyTopic = server.URL
	d2, _, _ := newDaemon(t, cfg2)

	sent, message, err = d2.TestNotification(ctx)
	if err != nil {
		t.Fatalf("TestNotification with topic failed: %v", err)
	}
	if !sent {
		t.Fatalf("expected notification to send, got message %q", message)
	}
	captured := notes()
	if len(captured) != 1 || captured[0].title != "dcmrelay - Test" {
		t.Fatalf("unexpected captured notifications: %+v", captured)
	}
}

func TestDaemonLifecycleNotifications(t *testing.T) {
	server, notes := captureNtfy(t)
	cfg := testConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	d, _, _ := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	var titles []string
	for _, note := range notes() {
		titles = append(titles, note.title)
	}
	joined := strings.Join(titles, "|")
	if !strings.Contains(joined, "dcmrelay - Started") {
		t.Fatalf("expected startup notification, got %v", titles)
	}
	if !strings.Contains(joined, "dcmrelay - Stopped") {
		t.Fatalf("expected shutdown notification, got %v", titles)
	}
}

func TestDaemonPartialStopNotifies(t *testing.T) {
	server, notes := captureNtfy(t)
	cfg := testConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Manager.MaxStopAttempts = 2

	endpoints, routes, _, _ := wireRelay(t, cfg)
	manager := relay.NewManager(cfg, routes, nil, logging.NewNop(),
		relay.WithStopSignal(func(*relay.Worker) bool { return false }))
	d, err := daemon.New(cfg, manager, endpoints, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	workers := manager.Workers()

	err = d.Stop(ctx)
	if !errors.Is(err, relay.ErrPartialStop) {
		t.Fatalf("expected partial stop error, got %v", err)
	}

	found := false
	for _, note := range notes() {
		if note.title == "dcmrelay - Stop Incomplete" {
			found = true
			if !strings.Contains(note.body, "1 workers unresponsive") {
				t.Fatalf("unexpected partial stop body %q", note.body)
			}
		}
	}
	if !found {
		t.Fatal("expected partial stop notification")
	}

	for _, worker := range workers {
		worker.SignalStop()
		<-worker.Done()
	}
}
