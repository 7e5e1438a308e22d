package dcmtk

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// C-ECHO failures mapped from echoscu exit codes.
var (
	ErrEchoSyntax      = errors.New("echoscu: commandline syntax error")
	ErrEchoNetwork     = errors.New("echoscu: cannot initialize network")
	ErrEchoAssociation = errors.New("echoscu: association aborted")
	ErrEchoFailed      = errors.New("echoscu: verification failed")
)

// SendTarget identifies the remote DICOM node a file is sent to.
type SendTarget struct {
	Addr      string
	Port      int
	CallingAE string
	CalledAE  string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps storescu and echoscu invocations.
type Client struct {
	storescu string
	echoscu  string
	exec     Executor
}

// New constructs a DCMTK client.
func New(storescuBinary, echoscuBinary string, opts ...Option) (*Client, error) {
	storescuBinary = strings.TrimSpace(storescuBinary)
	if storescuBinary == "" {
		return nil, errors.New("storescu binary required")
	}
	echoscuBinary = strings.TrimSpace(echoscuBinary)
	if echoscuBinary == "" {
		return nil, errors.New("echoscu binary required")
	}
	client := &Client{
		storescu: storescuBinary,
		echoscu:  echoscuBinary,
		exec:     commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Send transmits one file to the target with a C-STORE request. The called AE
// title goes first on the command line, matching storescu's -aec/-aet order.
func (c *Client) Send(ctx context.Context, target SendTarget, filePath string) error {
	if strings.TrimSpace(filePath) == "" {
		return errors.New("file path required")
	}
	args := []string{
		"-aec", target.CalledAE,
		"-aet", target.CallingAE,
		target.Addr,
		strconv.Itoa(target.Port),
		filePath,
	}

	tail := newOutputTail(4)
	if err := c.exec.Run(ctx, c.storescu, args, tail.Add); err != nil {
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("storescu %s:%d: %w (%s)", target.Addr, target.Port, err, detail)
		}
		return fmt.Errorf("storescu %s:%d: %w", target.Addr, target.Port, err)
	}
	return nil
}

// Ping issues a C-ECHO request against the target and maps echoscu's
// documented exit codes onto sentinel errors.
func (c *Client) Ping(ctx context.Context, addr string, port int) error {
	args := []string{"-q", addr, strconv.Itoa(port)}

	err := c.exec.Run(ctx, c.echoscu, args, nil)
	if err == nil {
		return nil
	}
	code, ok := exitCode(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrEchoFailed, err)
	}
	switch code {
	case 1:
		return ErrEchoSyntax
	case 60:
		return ErrEchoNetwork
	case 70:
		return ErrEchoAssociation
	default:
		return fmt.Errorf("%w: exit code %d", ErrEchoFailed, code)
	}
}

func exitCode(err error) (int, bool) {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode(), true
	}
	return 0, false
}

// outputTail keeps the last few command output lines for error context.
type outputTail struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func newOutputTail(limit int) *outputTail {
	return &outputTail{limit: limit}
}

func (t *outputTail) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *outputTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	return cmd.Wait()
}
