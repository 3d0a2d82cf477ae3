package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSetupRouterMiddleware(t *testing.T) {
	r := SetupRouter(nil)
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req-1" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != 500 {
		t.Fatalf("expected 500 after panic, got %d", w.Code)
	}
}

func TestStartLoopback(t *testing.T) {
	r := SetupRouter(nil)
	r.GET("/auth/callback", func(c *gin.Context) { c.String(200, c.Query("code")) })

	l, err := StartLoopback(DefaultConfig(), r, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	url := l.URL("auth/callback")
	if !strings.HasPrefix(url, "http://127.0.0.1:") || !strings.HasSuffix(url, "/auth/callback") {
		t.Fatalf("unexpected url %q", url)
	}

	resp, err := http.Get(url + "?code=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "abc" {
		t.Fatalf("unexpected body %q", body)
	}

	l.Stop()
	if _, err := http.Get(url); err == nil {
		t.Fatal("expected the server to be stopped")
	}
}

func TestStartLoopbackBadAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "256.0.0.1:bad"
	if _, err := StartLoopback(cfg, SetupRouter(nil), nil); err == nil {
		t.Fatal("expected listen error")
	}
}
