package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dcmrelay/internal/daemon"
	"dcmrelay/internal/endpoint"
	"dcmrelay/internal/ipc"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/logging"
	"dcmrelay/internal/relay"
	"dcmrelay/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithListener("ct", 11112),
		testsupport.WithDirectoryEndpoint("archive"),
		testsupport.WithRoute("ct", "archive"),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	inbox := testsupport.ListenerOutput(t, cfg, "ct")
	store := testsupport.MustOpenJournal(t, cfg)

	target, err := endpoint.NewDirectory(cfg.Endpoints.Directory[0])
	if err != nil {
		t.Fatalf("NewDirectory failed: %v", err)
	}
	endpoints := map[string]endpoint.Endpoint{target.Name(): target}
	routes, err := relay.BuildRoutes(cfg, endpoints)
	if err != nil {
		t.Fatalf("BuildRoutes failed: %v", err)
	}
	manager := relay.NewManager(cfg, routes, nil, logging.NewNop())
	d, err := daemon.New(cfg, manager, endpoints, logging.NewNop(), daemon.WithJournal(store))
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer failed: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() { srv.Close() })

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), status.PID)
	}
	if len(status.Routes) != 1 || status.Routes[0].Route != "ct" {
		t.Fatalf("unexpected routes: %+v", status.Routes)
	}
	if !strings.HasSuffix(status.JournalPath, "journal.db") {
		t.Fatalf("unexpected journal path: %s", status.JournalPath)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency statuses")
	}

	entry := journal.Entry{
		OccurredAt: time.Now().UTC(),
		Route:      "ct",
		BatchID:    "batch-1",
		File:       filepath.Join(inbox, "study.dcm"),
		Endpoint:   "archive",
		Outcome:    string(relay.OutcomeDelivered),
		Duration:   80 * time.Millisecond,
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	history, err := client.History(ipc.HistoryRequest{Route: "ct"})
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(history.Entries) != 1 || history.Entries[0].Endpoint != "archive" {
		t.Fatalf("unexpected history entries: %+v", history.Entries)
	}
	if history.Entries[0].DurationMS != 80 {
		t.Fatalf("expected 80ms duration, got %d", history.Entries[0].DurationMS)
	}

	ping, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping RPC failed: %v", err)
	}
	if len(ping.Results) != 1 || !ping.Results[0].Reachable {
		t.Fatalf("unexpected ping results: %+v", ping.Results)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent || !strings.Contains(notify.Message, "not configured") {
		t.Fatalf("expected unconfigured notification response, got %+v", notify)
	}

	stop, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stop.Stopped {
		t.Fatalf("expected stop to be acknowledged, got %+v", stop)
	}
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not finish stopping")
	}

	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC after stop failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDialFailsWithoutSocket(t *testing.T) {
	_, err := ipc.Dial(filepath.Join(t.TempDir(), "missing.sock"))
	if err == nil {
		t.Fatal("expected dial to fail without socket")
	}
}
