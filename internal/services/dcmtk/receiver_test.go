package dcmtk_test

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"dcmrelay/internal/services/dcmtk"
)

type stubProcess struct {
	mu     sync.Mutex
	killed bool
	waited bool
}

func (p *stubProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return nil
}

func (p *stubProcess) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = true
	return nil
}

func (p *stubProcess) Pid() int { return 4242 }

func (p *stubProcess) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed && p.waited
}

type stubLauncher struct {
	mu     sync.Mutex
	binary string
	args   []string
	procs  []*stubProcess
}

func (l *stubLauncher) launch(binary string, args []string) (dcmtk.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.binary = binary
	l.args = append([]string{}, args...)
	proc := &stubProcess{}
	l.procs = append(l.procs, proc)
	return proc, nil
}

func stubBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storescp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub binary: %v", err)
	}
	return path
}

func newReceiver(t *testing.T, launcher *stubLauncher) (*dcmtk.Receiver, string) {
	t.Helper()
	inbox := t.TempDir()
	receiver, err := dcmtk.NewReceiver(dcmtk.ReceiverSpec{
		Name:      "ct-scanner",
		AE:        "DCMRELAY",
		Port:      11112,
		OutputDir: inbox,
		Binary:    stubBinary(t),
	}, dcmtk.WithLauncher(launcher.launch))
	if err != nil {
		t.Fatalf("NewReceiver returned error: %v", err)
	}
	return receiver, inbox
}

func TestReceiverStartBuildsStorescpCommand(t *testing.T) {
	launcher := &stubLauncher{}
	receiver, inbox := newReceiver(t, launcher)

	if err := receiver.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(func() { _ = receiver.Stop() })

	want := []string{"-aet", "DCMRELAY", "-od", inbox, strconv.Itoa(11112)}
	if len(launcher.args) != len(want) {
		t.Fatalf("unexpected args: %v", launcher.args)
	}
	for i, arg := range want {
		if launcher.args[i] != arg {
			t.Fatalf("arg %d: got %q want %q", i, launcher.args[i], arg)
		}
	}
	if !receiver.Running() {
		t.Fatal("expected receiver to be running after Start")
	}
	if receiver.Pid() != 4242 {
		t.Fatalf("unexpected pid: %d", receiver.Pid())
	}
}

func TestReceiverStartReplacesPreviousProcess(t *testing.T) {
	launcher := &stubLauncher{}
	receiver, _ := newReceiver(t, launcher)

	if err := receiver.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := receiver.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	t.Cleanup(func() { _ = receiver.Stop() })

	if len(launcher.procs) != 2 {
		t.Fatalf("expected two spawned processes, got %d", len(launcher.procs))
	}
	if !launcher.procs[0].stopped() {
		t.Fatal("expected first process to be stopped before restart")
	}
	if launcher.procs[1].stopped() {
		t.Fatal("expected second process to remain running")
	}
}

func TestReceiverStopIsIdempotent(t *testing.T) {
	launcher := &stubLauncher{}
	receiver, _ := newReceiver(t, launcher)

	if err := receiver.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := receiver.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if receiver.Running() {
		t.Fatal("expected receiver to be stopped")
	}
	if err := receiver.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if !launcher.procs[0].stopped() {
		t.Fatal("expected process kill and reap")
	}
	if receiver.Pid() != 0 {
		t.Fatalf("expected zero pid after stop, got %d", receiver.Pid())
	}
}

func TestNewReceiverValidatesSpec(t *testing.T) {
	cases := []dcmtk.ReceiverSpec{
		{AE: "AE", Port: 104, OutputDir: "/tmp"},
		{Name: "a", Port: 104, OutputDir: "/tmp"},
		{Name: "a", AE: "AE", Port: 0, OutputDir: "/tmp"},
		{Name: "a", AE: "AE", Port: 104},
	}
	for i, spec := range cases {
		if _, err := dcmtk.NewReceiver(spec); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
