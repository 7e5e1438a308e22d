package dcmtk

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ReceiverSpec describes one storescp listener.
type ReceiverSpec struct {
	Name      string
	AE        string
	Port      int
	OutputDir string
	Binary    string
}

// Process is the controllable handle of a spawned listener.
type Process interface {
	Kill() error
	Wait() error
	Pid() int
}

// Launcher spawns a listener process. The default uses os/exec; tests inject
// a stub.
type Launcher func(binary string, args []string) (Process, error)

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithLauncher injects a custom process launcher (primarily for tests).
func WithLauncher(launcher Launcher) ReceiverOption {
	return func(r *Receiver) {
		if launcher != nil {
			r.launch = launcher
		}
	}
}

// Receiver manages a storescp process that accepts DICOM associations and
// stores incoming files into the listener inbox.
type Receiver struct {
	spec   ReceiverSpec
	launch Launcher

	mu   sync.Mutex
	proc Process
}

// NewReceiver constructs a receiver for the given listener.
func NewReceiver(spec ReceiverSpec, opts ...ReceiverOption) (*Receiver, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.New("receiver name required")
	}
	if strings.TrimSpace(spec.AE) == "" {
		return nil, errors.New("receiver AE title required")
	}
	if spec.Port < 1 || spec.Port > 65535 {
		return nil, fmt.Errorf("receiver %s: invalid port %d", spec.Name, spec.Port)
	}
	if strings.TrimSpace(spec.OutputDir) == "" {
		return nil, fmt.Errorf("receiver %s: output directory required", spec.Name)
	}
	if strings.TrimSpace(spec.Binary) == "" {
		spec.Binary = "storescp"
	}
	receiver := &Receiver{
		spec:   spec,
		launch: launchCommand,
	}
	for _, opt := range opts {
		opt(receiver)
	}
	return receiver, nil
}

// Name returns the listener name.
func (r *Receiver) Name() string { return r.spec.Name }

// Port returns the listening port.
func (r *Receiver) Port() int { return r.spec.Port }

// OutputDir returns the inbox directory the process writes into.
func (r *Receiver) OutputDir() string { return r.spec.OutputDir }

// Start spawns the storescp process. A previously running process is stopped
// first so Start can double as a restart.
func (r *Receiver) Start() error {
	if err := r.Stop(); err != nil {
		return err
	}
	if _, err := exec.LookPath(r.spec.Binary); err != nil {
		return fmt.Errorf("receiver %s: %w", r.spec.Name, err)
	}

	args := []string{
		"-aet", r.spec.AE,
		"-od", r.spec.OutputDir,
		strconv.Itoa(r.spec.Port),
	}

	proc, err := r.launch(r.spec.Binary, args)
	if err != nil {
		return fmt.Errorf("receiver %s: start storescp: %w", r.spec.Name, err)
	}

	r.mu.Lock()
	r.proc = proc
	r.mu.Unlock()
	return nil
}

// Stop kills the storescp process and reaps it. Stopping an already stopped
// receiver is a no-op.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	proc := r.proc
	r.proc = nil
	r.mu.Unlock()

	if proc == nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("receiver %s: kill storescp: %w", r.spec.Name, err)
	}
	// The process was killed, so its non-zero exit status is expected.
	_ = proc.Wait()
	return nil
}

// Running reports whether a listener process is currently held.
func (r *Receiver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc != nil
}

// Pid returns the process id of the running listener, or zero.
func (r *Receiver) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return 0
	}
	return r.proc.Pid()
}

type osProcess struct {
	cmd *exec.Cmd
}

func (p *osProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *osProcess) Wait() error { return p.cmd.Wait() }

func (p *osProcess) Pid() int { return p.cmd.Process.Pid }

func launchCommand(binary string, args []string) (Process, error) {
	cmd := exec.Command(binary, args...) //nolint:gosec
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osProcess{cmd: cmd}, nil
}
