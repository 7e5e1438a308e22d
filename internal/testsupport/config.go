// Package testsupport provides helpers for building relay test fixtures:
// configs seeded with per-test temp directories, listener inboxes and
// directory endpoints, stubbed DCMTK binaries, and journal stores.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dcmrelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Worker pacing is tightened so scan cycles pick files up immediately, and
// the HTTP API is disabled unless an option turns it on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = ""
	cfgVal.Workers.MinFileAgeSeconds = 0
	cfgVal.Workers.IdlePollSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithListener appends a listener whose output directory is created under
// the test base directory.
func WithListener(name string, port int) ConfigOption {
	return func(b *configBuilder) {
		output := filepath.Join(b.baseDir, "inbox", name)
		if err := os.MkdirAll(output, 0o755); err != nil {
			b.t.Fatalf("mkdir inbox for %s: %v", name, err)
		}
		b.cfg.Listeners = append(b.cfg.Listeners, config.Listener{
			Name:   name,
			Port:   port,
			AE:     "DCMRELAY",
			Output: output,
		})
	}
}

// WithDirectoryEndpoint appends a directory endpoint rooted under the test
// base directory.
func WithDirectoryEndpoint(name string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "out", name)
		if err := os.MkdirAll(path, 0o755); err != nil {
			b.t.Fatalf("mkdir endpoint %s: %v", name, err)
		}
		b.cfg.Endpoints.Directory = append(b.cfg.Endpoints.Directory, config.DirectoryEndpoint{
			Name: name,
			Path: path,
		})
	}
}

// WithDicomEndpoint appends a DICOM endpoint addressing the given peer.
func WithDicomEndpoint(name, addr string, port int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Endpoints.Dicom = append(b.cfg.Endpoints.Dicom, config.DicomEndpoint{
			Name: name,
			Addr: addr,
			Port: port,
			AET:  "DCMRELAY",
			AEC:  "PEER",
		})
	}
}

// WithRoute appends a route from the named listener to the given endpoints.
func WithRoute(name string, endpoints ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Routes = append(b.cfg.Routes, config.Route{
			Name:      name,
			Endpoints: endpoints,
		})
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the DCMTK tools the relay
// shells out to are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"storescp", "storescu", "echoscu"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// ListenerOutput returns the inbox directory of the named listener.
func ListenerOutput(t testing.TB, cfg *config.Config, name string) string {
	t.Helper()
	listener, ok := cfg.ListenerByName(name)
	if !ok {
		t.Fatalf("listener %q not configured", name)
	}
	return listener.Output
}

// DirectoryEndpointPath returns the target path of the named directory
// endpoint.
func DirectoryEndpointPath(t testing.TB, cfg *config.Config, name string) string {
	t.Helper()
	for _, target := range cfg.Endpoints.Directory {
		if target.Name == name {
			return target.Path
		}
	}
	t.Fatalf("directory endpoint %q not configured", name)
	return ""
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
