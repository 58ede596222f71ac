package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/linkgate/internal/app/model"
	"github.com/sifan077/linkgate/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRedirects struct {
	clicks int
}

func (s *staticRedirects) Resolve(_ context.Context, code string) service.Resolution {
	if code != "home" {
		return service.Resolution{Decision: service.Decision{Outcome: service.OutcomeNotFound}}
	}
	return service.Resolution{
		Decision: service.Decision{Outcome: service.OutcomeRedirect, URL: "https://example.com"},
		Link:     &model.Link{ID: "l1", ShortCode: code, IsActive: true},
	}
}

func (s *staticRedirects) RecordClick(*model.Link, service.ClickInfo) bool {
	s.clicks++
	return true
}

type noopCache struct{}

func (noopCache) Invalidate(string) {}
func (noopCache) Len() int          { return 0 }

const testOpsToken = "ops-secret"

func newTestServer(redirects service.RedirectService) *Server {
	return New(Dependencies{
		Redirects: redirects,
		Buffer:    service.NewClickBuffer(8, nil),
		Cache:     noopCache{},
		OpsToken:  testOpsToken,
	})
}

func opsRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func TestServer_Routes(t *testing.T) {
	redirects := &staticRedirects{}
	srv := newTestServer(redirects)

	tests := []struct {
		method string
		path   string
		token  string
		want   int
	}{
		{fiber.MethodGet, "/health", "", fiber.StatusOK},
		{fiber.MethodGet, "/_internal/stats", testOpsToken, fiber.StatusOK},
		{fiber.MethodPost, "/_internal/cache/home/invalidate", testOpsToken, fiber.StatusNoContent},
		{fiber.MethodGet, "/home", "", fiber.StatusFound},
		{fiber.MethodGet, "/missing", "", fiber.StatusNotFound},
	}

	for _, tt := range tests {
		resp, err := srv.App().Test(opsRequest(tt.method, tt.path, tt.token))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, "%s %s", tt.method, tt.path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}
	assert.Equal(t, 1, redirects.clicks)
}

func TestServer_OpsRoutesRequireToken(t *testing.T) {
	srv := newTestServer(&staticRedirects{})

	for _, token := range []string{"", "wrong"} {
		for _, req := range []*http.Request{
			opsRequest(fiber.MethodGet, "/_internal/stats", token),
			opsRequest(fiber.MethodPost, "/_internal/cache/home/invalidate", token),
		} {
			resp, err := srv.App().Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "%s %s token=%q", req.Method, req.URL.Path, token)
		}
	}
}

func TestServer_OpsRoutesHiddenWithoutToken(t *testing.T) {
	srv := New(Dependencies{
		Redirects: &staticRedirects{},
		Buffer:    service.NewClickBuffer(8, nil),
		Cache:     noopCache{},
	})

	for _, req := range []*http.Request{
		opsRequest(fiber.MethodGet, "/_internal/stats", "anything"),
		opsRequest(fiber.MethodPost, "/_internal/cache/home/invalidate", "anything"),
	} {
		resp, err := srv.App().Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "%s %s", req.Method, req.URL.Path)
	}
}

func TestServer_RedirectIsNotRateLimitedWithoutRedis(t *testing.T) {
	srv := newTestServer(&staticRedirects{})

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/home", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
}
