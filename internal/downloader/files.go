package downloader

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultExtension is used when nothing else identifies the file type.
const DefaultExtension = "jpg"

var (
	formatQueryRe = regexp.MustCompile(`[?&]format=([a-zA-Z0-9]+)`)
	safeExtRe     = regexp.MustCompile(`^[a-z0-9]{1,5}$`)
)

// InferExtension picks a file extension for a downloaded URL, in priority
// order: explicit format query parameter, path extension, Content-Type
// subtype, then DefaultExtension.
func InferExtension(rawURL, contentType string) string {
	decoded := rawURL
	if d, err := url.QueryUnescape(rawURL); err == nil {
		decoded = d
	}

	if m := formatQueryRe.FindStringSubmatch(decoded); len(m) == 2 {
		if ext := strings.ToLower(m[1]); safeExtRe.MatchString(ext) {
			return ext
		}
	}

	name := decoded
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")); safeExtRe.MatchString(ext) {
		return ext
	}

	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if _, sub, ok := strings.Cut(mediaType, "/"); ok {
				if sub = strings.ToLower(sub); safeExtRe.MatchString(sub) {
					return sub
				}
			}
		}
	}

	return DefaultExtension
}

// NewFileName returns "{unixMillis}_{uuid}.{ext}".
func NewFileName(now time.Time, ext string) string {
	return fmt.Sprintf("%d_%s.%s", now.UnixMilli(), uuid.New().String(), ext)
}

// writeAtomic streams r into dir/name through a temporary file in the same
// directory, so name only ever appears fully written.
func writeAtomic(dir, name string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create media directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename file: %w", err)
	}
	return n, nil
}
