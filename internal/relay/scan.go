package relay

import (
	"io/fs"
	"path/filepath"
	"time"
)

// collectFiles walks the inbox recursively and returns eligible file
// paths plus a count of entries that could not be read. limit caps the
// batch; zero means unbounded. Unreadable entries are skipped so one
// bad file never stalls the route; the caller logs the count.
func collectFiles(dir string, limit int, minAge time.Duration, now time.Time) ([]string, int) {
	var paths []string
	skipped := 0
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			skipped++
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			skipped++
			return nil
		}
		// Strictly older than the settle window keeps a file that
		// storescp is still writing out of the batch.
		if now.Sub(info.ModTime()) <= minAge {
			return nil
		}
		paths = append(paths, path)
		if limit > 0 && len(paths) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	return paths, skipped
}
