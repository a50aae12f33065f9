package downloader

import (
	"context"
)

// Fetcher saves remote media into a local directory.
type Fetcher interface {
	// Fetch downloads url into dir. The returned file is complete on disk;
	// on error nothing is left behind.
	Fetch(ctx context.Context, url, dir string) (*SavedFile, error)

	// CopyLocal persists an already-local file into dir under a fresh name.
	CopyLocal(ctx context.Context, src, dir string) (*SavedFile, error)
}

// SavedFile describes a file written by a Fetcher.
type SavedFile struct {
	Path        string
	Size        int64
	ContentType string
	Extension   string
}
