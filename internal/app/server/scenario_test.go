package server

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/linkgate/internal/app/model"
	"github.com/sifan077/linkgate/internal/app/repository"
	"github.com/sifan077/linkgate/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryDirectory is an in-memory link table plus click log.
type memoryDirectory struct {
	mu      sync.Mutex
	links   map[string]*model.Link
	events  []model.ClickEvent
	lookups int
	writes  int
}

func (d *memoryDirectory) GetByCode(_ context.Context, code string) (*model.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	link, ok := d.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (d *memoryDirectory) IncrementClicks(_ context.Context, linkID string, delta int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	for _, link := range d.links {
		if link.ID == linkID {
			link.ClickCount += delta
			return nil
		}
	}
	return repository.ErrLinkNotFound
}

func (d *memoryDirectory) CreateBatch(_ context.Context, events []model.ClickEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	d.events = append(d.events, events...)
	return nil
}

func (d *memoryDirectory) clickCount(code string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.links[code].ClickCount
}

func (d *memoryDirectory) eventCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

type pipeline struct {
	dir       *memoryDirectory
	buffer    *service.ClickBuffer
	persister *service.ClickPersister
	app       *fiber.App
}

func newPipeline(t *testing.T, links ...*model.Link) *pipeline {
	t.Helper()

	dir := &memoryDirectory{links: make(map[string]*model.Link)}
	for _, l := range links {
		dir.links[l.ShortCode] = l
	}

	cache, err := service.NewLinkCache(service.LinkCacheConfig{TTL: time.Minute, NegativeTTL: time.Second}, service.LinkCacheDeps{Lookup: dir})
	require.NoError(t, err)

	buffer := service.NewClickBuffer(64, nil)
	persister, err := service.NewClickPersister(service.ClickPersisterConfig{
		Workers:       1,
		BatchSize:     10,
		FlushInterval: time.Hour,
	}, service.ClickPersisterDeps{Buffer: buffer, Counter: dir, Log: dir})
	require.NoError(t, err)
	persister.Start()
	t.Cleanup(persister.Stop)

	srv := New(Dependencies{
		Redirects: service.NewRedirectService(service.RedirectDeps{Links: cache, Buffer: buffer}),
		Buffer:    buffer,
		Cache:     cache,
	})

	return &pipeline{dir: dir, buffer: buffer, persister: persister, app: srv.App()}
}

func (p *pipeline) get(t *testing.T, path string) (int, string, string) {
	t.Helper()
	resp, err := p.app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get(fiber.HeaderLocation), string(body)
}

func TestScenario_ActiveLinkRedirectsAndCountsClick(t *testing.T) {
	p := newPipeline(t, &model.Link{ID: "l1", ShortCode: "abc123", OriginalURL: "https://example.com/a", IsActive: true})

	status, location, _ := p.get(t, "/abc123")
	assert.Equal(t, fiber.StatusFound, status)
	assert.Equal(t, "https://example.com/a", location)

	p.persister.Stop()
	assert.Equal(t, int64(1), p.dir.clickCount("abc123"))
	assert.Equal(t, 1, p.dir.eventCount())
}

func TestScenario_UnknownCodeIsNotFoundWithoutWrites(t *testing.T) {
	p := newPipeline(t)

	status, _, _ := p.get(t, "/xyz999")
	assert.Equal(t, fiber.StatusNotFound, status)

	p.persister.Stop()
	assert.Equal(t, 0, p.dir.writes)
	assert.Equal(t, 1, p.dir.lookups)
}

func TestScenario_ExpiredLinkShowsMessage(t *testing.T) {
	p := newPipeline(t, &model.Link{
		ID:                "l3",
		ShortCode:         "sale24",
		OriginalURL:       "https://example.com/sale",
		IsActive:          true,
		ExpiresAt:         ptr(time.Now().Add(-time.Hour)),
		ExpirationMessage: ptr("Gone"),
	})

	status, location, body := p.get(t, "/sale24")
	assert.Equal(t, fiber.StatusGone, status)
	assert.Empty(t, location)
	assert.Contains(t, body, "Gone")
}

func TestScenario_ScheduledLinkPublishesNoClick(t *testing.T) {
	p := newPipeline(t, &model.Link{
		ID:          "l4",
		ShortCode:   "launch",
		OriginalURL: "https://example.com/launch",
		IsActive:    true,
		ActivateAt:  ptr(time.Now().Add(time.Hour)),
	})

	status, _, _ := p.get(t, "/launch")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Zero(t, p.buffer.Len())

	p.persister.Stop()
	assert.Zero(t, p.dir.eventCount())
	assert.Equal(t, int64(0), p.dir.clickCount("launch"))
}

func TestScenario_RepeatedRedirectsHitCache(t *testing.T) {
	p := newPipeline(t, &model.Link{ID: "l5", ShortCode: "hot123", OriginalURL: "https://example.com/hot", IsActive: true})

	for i := 0; i < 5; i++ {
		status, _, _ := p.get(t, "/hot123")
		require.Equal(t, fiber.StatusFound, status)
	}

	p.persister.Stop()
	assert.Equal(t, 1, p.dir.lookups)
	assert.Equal(t, int64(5), p.dir.clickCount("hot123"))
}

func ptr[T any](v T) *T { return &v }
