package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dcmrelay/internal/config"
	"dcmrelay/internal/daemon"
	"dcmrelay/internal/endpoint"
	"dcmrelay/internal/ipc"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/logging"
	"dcmrelay/internal/relay"
	"dcmrelay/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *journal.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	inbox      string
	archive    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t,
		testsupport.WithListener("ct", 11112),
		testsupport.WithDirectoryEndpoint("archive"),
		testsupport.WithRoute("ct", "archive"),
		testsupport.WithStubbedBinaries(),
	)

	configPath := filepath.Join(homeDir, ".config", "dcmrelay", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenJournal(t, cfg)

	target, err := endpoint.NewDirectory(cfg.Endpoints.Directory[0])
	if err != nil {
		t.Fatalf("endpoint.NewDirectory: %v", err)
	}
	endpoints := map[string]endpoint.Endpoint{target.Name(): target}
	routes, err := relay.BuildRoutes(cfg, endpoints)
	if err != nil {
		t.Fatalf("relay.BuildRoutes: %v", err)
	}
	manager := relay.NewManager(cfg, routes, nil, logging.NewNop(),
		relay.WithRecorder(journal.NewRecorder(store, logging.NewNop())))

	d, err := daemon.New(cfg, manager, endpoints, logging.NewNop(), daemon.WithJournal(store))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logging.NewNop())
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		inbox:      testsupport.ListenerOutput(t, cfg, "ct"),
		archive:    testsupport.DirectoryEndpointPath(t, cfg, "archive"),
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var sb strings.Builder
	fmt.Fprintf(&sb, "[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n\n",
		cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.APIBind)
	for _, listener := range cfg.Listeners {
		fmt.Fprintf(&sb, "[[listeners]]\nname = %q\nport = %d\nae = %q\noutput = %q\n\n",
			listener.Name, listener.Port, listener.AE, listener.Output)
	}
	for _, target := range cfg.Endpoints.Directory {
		fmt.Fprintf(&sb, "[[endpoints.directory]]\nname = %q\npath = %q\n\n",
			target.Name, target.Path)
	}
	for _, route := range cfg.Routes {
		quoted := make([]string, 0, len(route.Endpoints))
		for _, name := range route.Endpoints {
			quoted = append(quoted, fmt.Sprintf("%q", name))
		}
		fmt.Fprintf(&sb, "[[routes]]\nname = %q\nendpoints = [%s]\n\n",
			route.Name, strings.Join(quoted, ", "))
	}
	fmt.Fprintf(&sb, "[workers]\nmin_file_age_seconds = %d\nidle_poll_seconds = %d\n",
		cfg.Workers.MinFileAgeSeconds, cfg.Workers.IdlePollSeconds)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
