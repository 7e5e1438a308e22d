package logging_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dcmrelay/internal/config"
	"dcmrelay/internal/logging"
	"dcmrelay/internal/services"
)

func newFileLogger(t *testing.T, format, level string) (*slog.Logger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "relay.log")
	logger, err := logging.New(logging.Options{
		Format:           format,
		Level:            level,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleFormatIncludesComponentAndFields(t *testing.T) {
	logger, logPath := newFileLogger(t, "console", "info")

	worker := logging.NewComponentLogger(logger, "worker")
	worker.Info("scan complete", logging.String(logging.FieldRoute, "ct-scanner"), logging.Int("files", 3))

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO worker: scan complete") {
		t.Fatalf("expected component prefix in %q", content)
	}
	if !strings.Contains(content, "route=ct-scanner") {
		t.Fatalf("expected route field in %q", content)
	}
	if !strings.Contains(content, "files=3") {
		t.Fatalf("expected files field in %q", content)
	}
}

func TestConsoleFormatQuotesValuesWithSpaces(t *testing.T) {
	logger, logPath := newFileLogger(t, "console", "info")
	logger.Info("delivery failed", logging.String(logging.FieldEndpoint, "pacs main"))

	content := readLog(t, logPath)
	if !strings.Contains(content, `endpoint="pacs main"`) {
		t.Fatalf("expected quoted endpoint value in %q", content)
	}
}

func TestJSONFormatUsesCanonicalKeys(t *testing.T) {
	logger, logPath := newFileLogger(t, "json", "info")
	logger.Info("json message", logging.String("k", "v"))

	content := readLog(t, logPath)
	for _, fragment := range []string{`"ts":`, `"level":"info"`, `"msg":"json message"`, `"k":"v"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, logPath := newFileLogger(t, "console", "info")
	logger.Debug("hidden message")
	logger.Info("visible message")

	content := readLog(t, logPath)
	if strings.Contains(content, "hidden message") {
		t.Fatalf("expected debug record to be filtered, got %q", content)
	}
	if !strings.Contains(content, "visible message") {
		t.Fatalf("expected info record in %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon starting")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, "dcmrelay.log"))
	if !strings.Contains(content, "daemon starting") {
		t.Fatalf("expected record in log file, got %q", content)
	}
}

func TestWithContextAddsRouteAndBatch(t *testing.T) {
	logger, logPath := newFileLogger(t, "console", "info")

	ctx := services.WithRoute(context.Background(), "ct-scanner")
	ctx = services.WithBatchID(ctx, "batch-7")

	logging.WithContext(ctx, logger).Info("file relayed")

	content := readLog(t, logPath)
	if !strings.Contains(content, "route=ct-scanner") {
		t.Fatalf("expected route from context in %q", content)
	}
	if !strings.Contains(content, "batch_id=batch-7") {
		t.Fatalf("expected batch id from context in %q", content)
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	logger, logPath := newFileLogger(t, "console", "info")

	logging.WarnWithContext(logger, "endpoint unreachable", "delivery_failed")

	content := readLog(t, logPath)
	if !strings.Contains(content, "event_type=delivery_failed") {
		t.Fatalf("expected event type in %q", content)
	}
	if !strings.Contains(content, "error_hint=") {
		t.Fatalf("expected default error hint in %q", content)
	}
	if !strings.Contains(content, "impact=") {
		t.Fatalf("expected default impact in %q", content)
	}
}
