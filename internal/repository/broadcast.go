package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/xstash/internal/domain"
)

// snapshotFunc loads the current bookmark list.
type snapshotFunc func(ctx context.Context) ([]*domain.Bookmark, error)

// broadcaster fans bookmark snapshots out to Observe subscribers.
type broadcaster struct {
	load snapshotFunc

	mu     sync.Mutex
	subs   map[uint64]chan []*domain.Bookmark
	subSeq uint64
}

func newBroadcaster(load snapshotFunc) *broadcaster {
	return &broadcaster{
		load: load,
		subs: make(map[uint64]chan []*domain.Bookmark),
	}
}

func (b *broadcaster) subscribe(ctx context.Context) <-chan []*domain.Bookmark {
	ch := make(chan []*domain.Bookmark, 1)

	b.mu.Lock()
	b.subSeq++
	id := b.subSeq
	b.subs[id] = ch
	b.mu.Unlock()

	if snap, err := b.load(ctx); err == nil {
		b.mu.Lock()
		offerLatest(ch, snap)
		b.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// publish sends a fresh snapshot to every subscriber.
func (b *broadcaster) publish(ctx context.Context) {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	if n == 0 {
		return
	}

	snap, err := b.load(context.WithoutCancel(ctx))
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		offerLatest(ch, snap)
	}
}

// offerLatest replaces any unread snapshot in ch with snap. Caller holds mu.
func offerLatest(ch chan []*domain.Bookmark, snap []*domain.Bookmark) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
