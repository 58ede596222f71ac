package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBuffer struct {
	length, capacity int
	dropped          int64
}

func (s stubBuffer) Len() int       { return s.length }
func (s stubBuffer) Cap() int       { return s.capacity }
func (s stubBuffer) Dropped() int64 { return s.dropped }

type stubCache struct {
	entries     int
	invalidated []string
}

func (s *stubCache) Invalidate(code string) { s.invalidated = append(s.invalidated, code) }
func (s *stubCache) Len() int               { return s.entries }

func newOpsApp(cache *stubCache) *fiber.App {
	app := fiber.New()
	NewOpsHandler(OpsDeps{
		Buffer: stubBuffer{length: 3, capacity: 100, dropped: 7},
		Cache:  cache,
	}).Register(app)
	return app
}

func TestOpsHandler_Stats(t *testing.T) {
	app := newOpsApp(&stubCache{entries: 42})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/_internal/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := readBody(t, resp.Body)
	assert.JSONEq(t, `{"click_buffer":{"depth":3,"capacity":100,"dropped":7},"cache":{"entries":42}}`, body)
}

func TestOpsHandler_Invalidate(t *testing.T) {
	cache := &stubCache{}
	app := newOpsApp(cache)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/_internal/cache/promo1/invalidate", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"promo1"}, cache.invalidated)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/_internal/cache/ab/invalidate", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, cache.invalidated, 1)
}
