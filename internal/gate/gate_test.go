package gate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/xstash/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGate(t *testing.T, ttl time.Duration) (*SQLiteGate, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.db")
	db, err := repository.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	g, err := NewSQLiteGate(db, ttl, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteGate failed: %v", err)
	}
	return g, path
}

func TestSQLiteGate_AcquireRelease(t *testing.T) {
	g, _ := newTestGate(t, time.Minute)
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = %v, %v; want true", ok, err)
	}

	ok, err = g.TryAcquire(ctx)
	if err != nil || ok {
		t.Fatalf("second TryAcquire = %v, %v; want false", ok, err)
	}

	if err := g.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	ok, err = g.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("TryAcquire after release = %v, %v; want true", ok, err)
	}
}

func TestSQLiteGate_ConcurrentAcquire(t *testing.T) {
	g, _ := newTestGate(t, time.Minute)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		winners int32
		start   = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := g.TryAcquire(ctx)
			if err != nil {
				t.Errorf("TryAcquire failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestSQLiteGate_ReleaseAfterFailedAcquire(t *testing.T) {
	g, _ := newTestGate(t, time.Minute)
	ctx := context.Background()

	if ok, _ := g.TryAcquire(ctx); !ok {
		t.Fatal("setup acquire failed")
	}
	if ok, _ := g.TryAcquire(ctx); ok {
		t.Fatal("acquire while held should fail")
	}
	// Holder finishes and releases; the gate must be usable again.
	if err := g.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok, _ := g.TryAcquire(ctx); !ok {
		t.Error("gate should be acquirable after release")
	}
}

func TestSQLiteGate_ExpiredLeaseIsReclaimed(t *testing.T) {
	g, _ := newTestGate(t, time.Minute)
	ctx := context.Background()

	now := time.Now()
	g.now = func() time.Time { return now }

	if ok, _ := g.TryAcquire(ctx); !ok {
		t.Fatal("setup acquire failed")
	}

	g.now = func() time.Time { return now.Add(30 * time.Second) }
	if ok, _ := g.TryAcquire(ctx); ok {
		t.Fatal("lease should still be valid")
	}

	g.now = func() time.Time { return now.Add(61 * time.Second) }
	status, err := g.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Held || !status.Expired {
		t.Errorf("status = %+v, want held and expired", status)
	}

	if ok, _ := g.TryAcquire(ctx); !ok {
		t.Error("expired lease should be reclaimed")
	}
}

func TestSQLiteGate_SurvivesReopen(t *testing.T) {
	g, path := newTestGate(t, time.Minute)
	ctx := context.Background()

	if ok, _ := g.TryAcquire(ctx); !ok {
		t.Fatal("setup acquire failed")
	}

	db2, err := repository.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	g2, err := NewSQLiteGate(db2, time.Minute, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteGate failed: %v", err)
	}
	if ok, _ := g2.TryAcquire(ctx); ok {
		t.Error("lease held by previous process should persist")
	}

	if err := g2.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	status, err := g2.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Held {
		t.Error("gate should be free after reset")
	}
}
