package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
	"github.com/iconidentify/xstash/internal/gate"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

type mockIngester struct {
	outcome *domain.ShareOutcome
	events  []domain.ShareEvent
	ctxErr  error
}

func (m *mockIngester) Ingest(ctx context.Context, ev domain.ShareEvent) *domain.ShareOutcome {
	m.events = append(m.events, ev)
	m.ctxErr = ctx.Err()
	return m.outcome
}

// mockStore is an in-memory BookmarkStore and BookmarkFeed.
type mockStore struct {
	mu        sync.Mutex
	bookmarks []*domain.Bookmark
	groups    []*domain.AuthorGroup
	listErr   error
	deleteErr error
	authorArg string
	deleted   []int64
	updates   chan []*domain.Bookmark
}

func (m *mockStore) List(ctx context.Context, author string) ([]*domain.Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorArg = author
	return m.bookmarks, m.listErr
}

func (m *mockStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStore) Authors(ctx context.Context) ([]*domain.AuthorGroup, error) {
	return m.groups, m.listErr
}

func (m *mockStore) Observe(ctx context.Context) <-chan []*domain.Bookmark {
	out := make(chan []*domain.Bookmark)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-m.updates:
				if !ok {
					return
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type mockDiagnostics struct {
	entries  []domain.DiagnosticEntry
	err      error
	limitArg int
}

func (m *mockDiagnostics) Recent(limit int) ([]domain.DiagnosticEntry, error) {
	m.limitArg = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && len(m.entries) > limit {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

type mockGate struct {
	lease  gate.Lease
	resets int
	err    error
}

func (m *mockGate) Status(ctx context.Context) (*gate.Lease, error) {
	if m.err != nil {
		return nil, m.err
	}
	l := m.lease
	return &l, nil
}

func (m *mockGate) Reset(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.resets++
	m.lease = gate.Lease{}
	return nil
}

type mockTrigger struct {
	jobs []string
	full bool
}

func (m *mockTrigger) Trigger(job string) bool {
	if m.full {
		return false
	}
	m.jobs = append(m.jobs, job)
	return true
}

var errStore = errors.New("database is locked")

var testSavedAt = time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)
