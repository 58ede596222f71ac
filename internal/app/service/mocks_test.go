package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sifan077/linkgate/internal/app/model"
	"github.com/sifan077/linkgate/internal/app/repository"
)

type mockLinkLookup struct {
	calls atomic.Int64
	getFn func(ctx context.Context, code string) (*model.Link, error)
}

func (m *mockLinkLookup) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	m.calls.Add(1)
	if m.getFn != nil {
		return m.getFn(ctx, code)
	}
	return nil, repository.ErrLinkNotFound
}

type mockClickCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	calls  int
	incrFn func(ctx context.Context, linkID string, delta int64) error
}

func (m *mockClickCounter) IncrementClicks(ctx context.Context, linkID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.incrFn != nil {
		if err := m.incrFn(ctx, linkID, delta); err != nil {
			return err
		}
	}
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[linkID] += delta
	return nil
}

func (m *mockClickCounter) count(linkID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[linkID]
}

type mockClickLog struct {
	mu       sync.Mutex
	events   []model.ClickEvent
	calls    int
	createFn func(ctx context.Context, events []model.ClickEvent) error
}

func (m *mockClickLog) CreateBatch(ctx context.Context, events []model.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.createFn != nil {
		if err := m.createFn(ctx, events); err != nil {
			return err
		}
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockClickLog) stored() []model.ClickEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ClickEvent(nil), m.events...)
}

type mockClickSink struct {
	mu     sync.Mutex
	events []model.ClickEvent
	err    error
}

func (m *mockClickSink) Export(_ context.Context, events []model.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockClickSink) exported() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func timePtr(t time.Time) *time.Time { return &t }

func stringPtr(s string) *string { return &s }
