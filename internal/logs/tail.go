// Package logs reads the daemon's current log file for the CLI. The
// daemon keeps <log_dir>/dcmrelay.log pointing at the newest run log,
// so the CLI never has to guess which file is active.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const followPollInterval = 250 * time.Millisecond

// CurrentPath returns the stable location of the active daemon log.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, "dcmrelay.log")
}

// Tail returns up to n trailing lines of the file and the offset just
// past the last complete line, suitable for Follow. Only complete lines
// count; a trailing fragment stays unread until its newline lands. A
// missing file is not an error: the daemon may simply not have run yet.
func Tail(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if n < 0 {
		n = 0
	}
	ring := make([]string, n)
	count := 0
	next := 0
	offset := int64(0)
	err = readLines(file, func(line string, size int64) {
		if n > 0 {
			ring[next] = line
			next = (next + 1) % n
			if count < n {
				count++
			}
		}
		offset += size
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == n {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%n])
	}
	return lines, offset, nil
}

// Follow polls the file for lines appended after offset and hands each
// one to sink until the context is canceled. A shrinking file is
// treated as rotation: reading restarts from the top of the new file.
// Cancellation is the normal way to end a follow and returns nil.
func Follow(ctx context.Context, path string, offset int64, sink func(string)) error {
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		next, err := drainFrom(path, offset, sink)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drainFrom reads complete lines starting at offset and returns the new
// offset.
func drainFrom(path string, offset int64, sink func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	err = readLines(file, func(line string, size int64) {
		sink(line)
		offset += size
	})
	if err != nil {
		return offset, err
	}
	return offset, nil
}

// readLines hands each newline-terminated line to fn along with its
// on-disk size including the terminator. A trailing fragment without a
// newline is ignored.
func readLines(r io.Reader, fn func(line string, size int64)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			fn(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), int64(len(line)))
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read log file: %w", err)
	}
}
