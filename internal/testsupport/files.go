package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteDicomFile creates a file that looks like a DICOM Part 10 object: a
// 128-byte preamble followed by the DICM magic, padded with a repeating
// pattern up to the requested size. Sizes smaller than the preamble are
// raised to it.
func WriteDicomFile(t testing.TB, path string, size int64) {
	t.Helper()

	const headerSize = 132
	if size < headerSize {
		size = headerSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	copy(header[128:], "DICM")
	if _, err := f.Write(header); err != nil {
		t.Fatalf("write header %s: %v", path, err)
	}

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = byte(i % 251)
	}

	remaining := size - headerSize
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// AgeFile backdates the file's modification time so settle-window checks
// treat it as old enough to pick up.
func AgeFile(t testing.TB, path string, age time.Duration) {
	t.Helper()

	past := time.Now().Add(-age)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("age %s: %v", path, err)
	}
}
