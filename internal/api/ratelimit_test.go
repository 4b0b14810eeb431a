package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ProofStamp/internal/api"
)

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(api.RateLimiter(ctx, api.Budget{Name: "test", RPS: 1, Burst: 2}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst should be allowed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request: got %d, want 429", codes[2])
	}
}

func TestRateLimiter_perClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(api.RateLimiter(ctx, api.Budget{Name: "test", RPS: 1, Burst: 1}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: got %d, each client has its own bucket", addr, w.Code)
		}
	}
}

func TestRouter_verifyBudgetIsSeparate(t *testing.T) {
	env := newTestEnvWith(t, true, api.RouterConfig{VerifyRateLimitRPS: 0.5})
	verifyPath := "/verify?url=" + url.QueryEscape(postURL)

	if w := env.do(t, http.MethodGet, verifyPath, nil, false); w.Code != http.StatusOK {
		t.Fatalf("first verify: got %d", w.Code)
	}
	w := env.do(t, http.MethodGet, verifyPath, nil, false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second verify: got %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After: got %q, want 2", got)
	}

	// Proof reads draw on the public budget only.
	for i := 0; i < 3; i++ {
		if w := env.do(t, http.MethodGet, "/proof/1", nil, false); w.Code != http.StatusOK {
			t.Errorf("proof read %d: got %d", i, w.Code)
		}
	}
}
