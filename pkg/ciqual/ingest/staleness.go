package ingest

import (
	"os"
	"time"
)

// IsStale reports whether the store at path is due for re-ingestion: a
// missing file is always stale, and an existing one is stale once its
// last-modified age exceeds maxAge.
func IsStale(path string, maxAge time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > maxAge
}
