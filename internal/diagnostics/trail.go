// Package diagnostics keeps a bounded JSON-lines trail of ingestion and
// reconciliation outcomes.
package diagnostics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/iconidentify/xstash/internal/domain"
)

const (
	// DefaultMaxEntries bounds the trail when no limit is configured.
	DefaultMaxEntries = 1000

	// MaxFieldBytes caps free-text fields so every line stays readable.
	MaxFieldBytes = 4096

	maxLineBytes = 1024 * 1024
)

// Trail manages the diagnostic log file (JSON lines format).
type Trail struct {
	path   string
	mu     sync.Mutex
	max    int
	now    func() time.Time
	logger *slog.Logger
}

// NewTrail creates a trail writing to path. An empty path disables it.
func NewTrail(path string, maxEntries int, logger *slog.Logger) *Trail {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trail{
		path:   path,
		max:    maxEntries,
		now:    time.Now,
		logger: logger,
	}
}

// Path returns the trail file location.
func (t *Trail) Path() string {
	return t.path
}

// Record implements domain.DiagnosticRecorder. Write failures are logged
// and otherwise ignored.
func (t *Trail) Record(entry domain.DiagnosticEntry) {
	if err := t.Append(entry); err != nil {
		t.logger.Warn("diagnostic trail write failed",
			"path", t.path,
			"status", entry.Status,
			"error", err,
		)
	}
}

// Append adds an entry to the trail, trimming the oldest entries past the limit.
func (t *Trail) Append(entry domain.DiagnosticEntry) error {
	if t.path == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("create diagnostics dir: %w", err)
	}

	entries, err := t.readEntriesLocked()
	if err != nil {
		return fmt.Errorf("read diagnostics: %w", err)
	}

	entry.SharedText = truncate(entry.SharedText)
	entry.SharedURI = truncate(entry.SharedURI)
	entry.Detail = truncate(entry.Detail)
	entry.Message = truncate(entry.Message)
	if entry.Time.IsZero() {
		entry.Time = t.now()
	}
	entry.Time = entry.Time.UTC()
	entries = append(entries, entry)

	if len(entries) > t.max {
		entries = entries[len(entries)-t.max:]
	}

	return t.writeEntriesLocked(entries)
}

// Recent returns the most recent entries (newest first).
func (t *Trail) Recent(limit int) ([]domain.DiagnosticEntry, error) {
	if t.path == "" {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.readEntriesLocked()
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

func (t *Trail) readEntriesLocked() ([]domain.DiagnosticEntry, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []domain.DiagnosticEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var entry domain.DiagnosticEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func (t *Trail) writeEntriesLocked(entries []domain.DiagnosticEntry) error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteString("\n")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, t.path)
}

func truncate(s string) string {
	if len(s) <= MaxFieldBytes {
		return s
	}
	cut := MaxFieldBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
