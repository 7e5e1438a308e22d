package logging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory of log files subject to age-based cleanup.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files older than maxAge from each target directory.
// Files matching an Exclude entry are never removed. Missing directories are
// skipped. The number of removed files is returned alongside any errors.
func CleanupOldLogs(targets []RetentionTarget, maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error

	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}

		pattern := target.Pattern
		if pattern == "" {
			pattern = "*"
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			matched, err := filepath.Match(pattern, name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !matched || excluded(name, target.Exclude) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				errs = append(errs, err)
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}

	return removed, errors.Join(errs...)
}

// excluded accepts bare file names and full paths in the exclude list.
func excluded(name string, exclude []string) bool {
	for _, candidate := range exclude {
		if candidate == name || filepath.Base(candidate) == name {
			return true
		}
	}
	return false
}
