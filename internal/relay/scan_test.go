package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	return path
}

func TestCollectFilesWalksNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	writeAgedFile(t, dir, "a.dcm", time.Minute)
	writeAgedFile(t, dir, filepath.Join("study1", "b.dcm"), time.Minute)
	writeAgedFile(t, dir, filepath.Join("study1", "series2", "c.dcm"), time.Minute)

	files, skipped := collectFiles(dir, 0, 0, time.Now())
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d: %v", len(files), files)
	}
	if skipped != 0 {
		t.Fatalf("expected no skipped entries, got %d", skipped)
	}
}

func TestCollectFilesHonorsLimit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.dcm", "b.dcm", "c.dcm", "d.dcm"} {
		writeAgedFile(t, dir, name, time.Minute)
	}

	files, _ := collectFiles(dir, 2, 0, time.Now())
	if len(files) != 2 {
		t.Fatalf("expected limit of 2 files, got %d", len(files))
	}
	if files, _ := collectFiles(dir, 0, 0, time.Now()); len(files) != 4 {
		t.Fatalf("expected unbounded collection of 4 files, got %d", len(files))
	}
}

func TestCollectFilesRequiresStrictAge(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	minAge := 30 * time.Second

	exact := writeAgedFile(t, dir, "exact.dcm", 0)
	stamp := now.Add(-minAge)
	if err := os.Chtimes(exact, stamp, stamp); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	older := writeAgedFile(t, dir, "older.dcm", minAge+time.Second)

	files, _ := collectFiles(dir, 0, minAge, now)
	if len(files) != 1 {
		t.Fatalf("expected only the aged file, got %v", files)
	}
	if files[0] != older {
		t.Fatalf("expected %s, got %s", older, files[0])
	}
}

func TestCollectFilesSkipsDirectoriesAndMissingRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "empty-study"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	if files, skipped := collectFiles(dir, 0, 0, time.Now()); len(files) != 0 || skipped != 0 {
		t.Fatalf("expected clean empty scan, got files=%v skipped=%d", files, skipped)
	}

	missing := filepath.Join(dir, "does-not-exist")
	files, skipped := collectFiles(missing, 0, 0, time.Now())
	if len(files) != 0 {
		t.Fatalf("expected no files for missing root, got %v", files)
	}
	if skipped != 1 {
		t.Fatalf("expected the missing root to count as skipped, got %d", skipped)
	}
}
