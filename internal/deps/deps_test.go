package deps

import (
	"os"
	"path/filepath"
	"testing"

	"dcmrelay/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail message for missing binary")
	}
}

func TestRelayRequirements(t *testing.T) {
	cfg := config.Default()
	reqs := Relay(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected three DCMTK requirements, got %d", len(reqs))
	}

	optional := map[string]bool{}
	for _, req := range reqs {
		optional[req.Name] = req.Optional
	}
	if optional["storescp"] || optional["storescu"] {
		t.Fatal("expected storescp and storescu to be required")
	}
	if !optional["echoscu"] {
		t.Fatal("expected echoscu to be optional")
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "storescp", Available: false},
		{Name: "storescu", Available: true},
		{Name: "echoscu", Available: false, Optional: true},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0] != "storescp" {
		t.Fatalf("unexpected missing set: %v", missing)
	}
}
