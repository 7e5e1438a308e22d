package dcmtk

import (
	"errors"
	"fmt"
	"testing"
)

func TestOutputTailKeepsLastLines(t *testing.T) {
	tail := newOutputTail(2)
	tail.Add("one")
	tail.Add("  ")
	tail.Add("two")
	tail.Add("three")

	if got := tail.String(); got != "two | three" {
		t.Fatalf("unexpected tail: %q", got)
	}
}

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e codedError) ExitCode() int { return e.code }

func TestExitCodeUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("wait command: %w", codedError{code: 60})
	code, ok := exitCode(wrapped)
	if !ok || code != 60 {
		t.Fatalf("expected code 60, got %d (ok=%v)", code, ok)
	}

	if _, ok := exitCode(errors.New("plain")); ok {
		t.Fatal("expected no exit code for plain error")
	}
}
