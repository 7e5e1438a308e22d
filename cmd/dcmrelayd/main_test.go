package main

import "testing"

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{
		"--config", "/etc/dcmrelay/config.toml",
		"--socket", "/run/dcmrelay.sock",
		"--log-level", "debug",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if flags.configPath != "/etc/dcmrelay/config.toml" {
		t.Fatalf("unexpected config path %q", flags.configPath)
	}

	opts := flags.options()
	if opts.SocketPath != "/run/dcmrelay.sock" {
		t.Fatalf("unexpected socket path %q", opts.SocketPath)
	}
	if opts.LogLevel != "debug" {
		t.Fatalf("unexpected log level %q", opts.LogLevel)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	flags, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	opts := flags.options()
	if opts.SocketPath != "" || opts.LogLevel != "" {
		t.Fatalf("expected empty overrides, got %+v", opts)
	}
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	if _, err := parseFlags([]string{"--definitely-not-a-flag"}); err == nil {
		t.Fatal("expected unknown flag to fail")
	}
}
