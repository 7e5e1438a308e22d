package daemonctl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dcmrelay/internal/config"
	"dcmrelay/internal/daemonctl"
	"dcmrelay/internal/ipc"
	"dcmrelay/internal/journal"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	return &cfg
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = true

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open failed: %v", err)
	}
	entry := journal.Entry{
		OccurredAt: time.Now().UTC(),
		Route:      "ct",
		BatchID:    "batch-1",
		File:       "study.dcm",
		Endpoint:   "archive",
		Outcome:    "delivered",
		Duration:   40 * time.Millisecond,
	}
	if err := store.Record(context.Background(), entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot failed: %v", err)
	}
	if snapshot.Status.Running {
		t.Fatal("expected not-running status without a daemon")
	}
	if snapshot.Status.JournalStats["delivered"] != 1 {
		t.Fatalf("expected delivered count 1, got %v", snapshot.Status.JournalStats)
	}
	if len(snapshot.Status.Dependencies) == 0 {
		t.Fatal("expected dependency fallback to resolve locally")
	}
	if len(snapshot.SystemChecks) == 0 {
		t.Fatal("expected system check lines")
	}
	relay := snapshot.SystemChecks[0]
	if relay.Label != "Relay" || relay.Severity != "warn" {
		t.Fatalf("unexpected relay line: %+v", relay)
	}
	if snapshot.DependencySummary.Total != len(snapshot.Status.Dependencies) {
		t.Fatalf("summary total %d does not match %d dependencies",
			snapshot.DependencySummary.Total, len(snapshot.Status.Dependencies))
	}
}

func TestBuildSystemChecksRunning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifications.NtfyTopic = "relay-alerts"
	status := &ipc.StatusResponse{
		Running: true,
		PID:     4242,
		Listeners: []ipc.ListenerStatus{
			{Name: "ct", Running: true},
			{Name: "mr", Running: false},
		},
	}

	lines := daemonctl.BuildSystemChecks(cfg, status)
	if lines[0].Severity != "ok" {
		t.Fatalf("expected running relay to be ok, got %+v", lines[0])
	}
	if lines[1].Label != "Listeners" || lines[1].Severity != "warn" {
		t.Fatalf("expected listener warning with one receiver down, got %+v", lines[1])
	}
	foundNotifications := false
	for _, line := range lines {
		if line.Label == "Notifications" {
			foundNotifications = true
			if line.Severity != "ok" {
				t.Fatalf("expected configured notifications to be ok, got %+v", line)
			}
		}
	}
	if !foundNotifications {
		t.Fatal("expected a notifications line")
	}
}

func TestBuildDependencySummary(t *testing.T) {
	deps := []ipc.DependencyStatus{
		{Name: "storescu", Available: true},
		{Name: "storescp", Available: false},
		{Name: "echoscu", Available: false, Optional: true},
	}
	summary := daemonctl.BuildDependencySummary(deps)
	if summary.Severity != "error" {
		t.Fatalf("expected error severity with a required dependency missing, got %q", summary.Severity)
	}
	if summary.Available != 1 || summary.MissingRequired != 1 || summary.MissingOptional != 1 {
		t.Fatalf("unexpected summary counts: %+v", summary)
	}

	all := []ipc.DependencyStatus{{Name: "storescu", Available: true}}
	summary = daemonctl.BuildDependencySummary(all)
	if summary.Severity != "ok" || summary.Detail != "1/1 available" {
		t.Fatalf("unexpected summary for complete deps: %+v", summary)
	}
}

func TestDeriveDataDir(t *testing.T) {
	cfg := testConfig(t)
	if dir := daemonctl.DeriveDataDir("/run/relay/dcmrelay.lock", "", nil); dir != "/run/relay" {
		t.Fatalf("expected lock path dir, got %q", dir)
	}
	if dir := daemonctl.DeriveDataDir("", "/var/lib/relay/journal.db", nil); dir != "/var/lib/relay" {
		t.Fatalf("expected journal path dir, got %q", dir)
	}
	if dir := daemonctl.DeriveDataDir("", "", cfg); dir != cfg.Paths.DataDir {
		t.Fatalf("expected config data dir, got %q", dir)
	}
}

func TestForceKillProcessGuards(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "dcmrelay.pid")
	if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected error when pid is unknown")
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}
