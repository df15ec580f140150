// Package janitor deletes stale temporary files.
package janitor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxAge is how long uploads and results are kept.
const DefaultMaxAge = time.Hour

// now is replaced in tests.
var now = time.Now

// Sweep removes regular files in dir whose modification time is older than
// maxAge and returns how many were deleted. A missing dir is not an error.
// Subdirectories are left alone.
func Sweep(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	cutoff := now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Deleted concurrently.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
		log.Debug().Str("file", path).Msg("removed stale file")
	}
	return removed, errors.Join(errs...)
}

// SweepAll runs Sweep over each dir, logging failures, and returns the total
// number of deleted files.
func SweepAll(maxAge time.Duration, dirs ...string) int {
	total := 0
	for _, dir := range dirs {
		n, err := Sweep(dir, maxAge)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cleanup failed")
		}
		total += n
	}
	if total > 0 {
		log.Info().Int("files", total).Msg("stale files removed")
	}
	return total
}
