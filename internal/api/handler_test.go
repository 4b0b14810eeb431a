package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ProofStamp/internal/api"
	"github.com/jmerrifield20/ProofStamp/internal/auth"
	"github.com/jmerrifield20/ProofStamp/internal/canon"
	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
	"github.com/jmerrifield20/ProofStamp/internal/stamp"
	"github.com/jmerrifield20/ProofStamp/internal/verify"
	"go.uber.org/zap"
)

const postURL = "https://example.com/hello/"

type testEnv struct {
	router *gin.Engine
	store  *content.MemoryStore
	host   *ledger.MemoryHost
	token  string
}

func newTestEnv(t *testing.T, withLedger bool) *testEnv {
	t.Helper()
	return newTestEnvWith(t, withLedger, api.RouterConfig{})
}

// newTestEnvWith builds the memory stack behind a router configured by rcfg.
// The admin issuer is always set.
func newTestEnvWith(t *testing.T, withLedger bool, rcfg api.RouterConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := content.NewMemoryStore()
	store.Put(&content.Document{
		ID: 1, Type: content.TypePost, Status: content.StatusPublish,
		Title: "Hello", Body: "<p>Hello world</p>", Permalink: postURL,
		ModifiedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	store.Put(&content.Document{ID: 2, Type: content.TypePost, Status: "draft", Permalink: "https://example.com/draft/"})

	host := ledger.NewMemoryHost()
	var client *ledger.Client
	var raw ledger.RawReader
	if withLedger {
		client = ledger.NewClient(host, "main", logger)
		raw = host
	}
	hasher := canon.New()
	rec := stamp.NewRecorder(store, hasher, client, "", logger)
	ver := verify.New(store, hasher, raw, verify.Config{SiteOrigin: "https://example.com/"}, logger)

	issuer, err := auth.NewIssuer("secret", "http://test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, err := issuer.Issue("tester")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rcfg.Admin = issuer
	router := api.NewRouter(ctx, rcfg, api.NewHandler(ver, rec, logger), logger)
	return &testEnv{router: router, store: store, host: host, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return m
}

// ── Public routes ────────────────────────────────────────────────────────────

func TestGetProof(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/proof/1", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	m := decode(t, w)
	if m["mode"] != "none" || m["commit"] != nil || m["hash"] != nil {
		t.Errorf("unexpected proof: %v", m)
	}
	if m["url"] != postURL || m["ver"] != "2025-01-02T03:04:05+00:00" {
		t.Errorf("url/ver: %v", m)
	}

	for _, path := range []string{"/proof/2", "/proof/999", "/proof/abc"} {
		if w := env.do(t, http.MethodGet, path, nil, false); w.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", path, w.Code)
		}
	}
}

func TestVerify_missingURL(t *testing.T) {
	env := newTestEnv(t, true)
	for _, path := range []string{"/verify", "/verify?url=", "/verify?url=%20"} {
		if w := env.do(t, http.MethodGet, path, nil, false); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, w.Code)
		}
	}
}

func TestStampThenVerify(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/admin/transition", map[string]any{"id": 1, "old_status": "draft", "new_status": "publish"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("transition: got %d: %s", w.Code, w.Body.String())
	}
	if m := decode(t, w); m["stamped"] != true || m["mode"] != "ledger" {
		t.Errorf("unexpected transition response: %v", m)
	}

	w = env.do(t, http.MethodGet, "/verify?url="+postURL, nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: got %d", w.Code)
	}
	m := decode(t, w)
	if m["match_local"] != true || m["match_ledger"] != true {
		t.Errorf("expected both verdicts true, got %v / %v", m["match_local"], m["match_ledger"])
	}
	if m["post_id"] != float64(1) || m["commit"] == nil || m["commit_url"] == nil {
		t.Errorf("unexpected verify response: %v", m)
	}

	// Edit the body without re-stamping.
	doc, _ := env.store.Get(context.Background(), 1)
	doc.Body = "<p>Hello tampered world</p>"
	env.store.Put(doc)

	m = decode(t, env.do(t, http.MethodGet, "/verify?url="+postURL, nil, false))
	if m["match_local"] != false || m["match_ledger"] != false {
		t.Errorf("expected both verdicts false after edit, got %v / %v", m["match_local"], m["match_ledger"])
	}

	m = decode(t, env.do(t, http.MethodGet, "/proof/1", nil, false))
	if m["mode"] != "ledger" {
		t.Errorf("proof mode: got %v", m["mode"])
	}
}

// ── Admin routes ─────────────────────────────────────────────────────────────

func TestAdmin_requiresToken(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodPost, "/admin/stamp", map[string]any{"ids": []int64{1}}, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", w.Code)
	}
}

func TestAdmin_transitionIgnored(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodPost, "/admin/transition", map[string]any{"id": 1, "old_status": "publish", "new_status": "trash"}, true)
	if w.Code != http.StatusOK || decode(t, w)["stamped"] != false {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
	if len(env.host.Commits()) != 0 {
		t.Error("non-publish transition must not write to the ledger")
	}
}

func TestAdmin_transitionLocalOnly(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/admin/transition", map[string]any{"id": 1, "new_status": "publish"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	if m := decode(t, w); m["mode"] != "local" || m["hash"] == nil {
		t.Errorf("unexpected response: %v", m)
	}
}

func TestAdmin_transitionBadRequest(t *testing.T) {
	env := newTestEnv(t, true)
	if w := env.do(t, http.MethodPost, "/admin/transition", map[string]any{"old_status": "draft"}, true); w.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/admin/transition", map[string]any{"id": 42, "new_status": "publish"}, true); w.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", w.Code)
	}
}

func TestAdmin_stampMany(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/admin/stamp", map[string]any{"ids": []int64{1, 2, 77}}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	m := decode(t, w)
	if m["ok"] != float64(2) || m["fail"] != float64(1) {
		t.Errorf("unexpected tally: %v", m)
	}

	if w := env.do(t, http.MethodPost, "/admin/stamp", map[string]any{"ids": []int64{}}, true); w.Code != http.StatusBadRequest {
		t.Errorf("empty ids: got %d, want 400", w.Code)
	}
}

func TestRouter_healthAndRequestID(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodGet, "/healthz", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("healthz: got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}
	if w := env.do(t, http.MethodGet, "/metrics", nil, false); w.Code != http.StatusOK {
		t.Errorf("metrics: got %d", w.Code)
	}
}

type stubReadiness struct {
	ready bool
}

func (s stubReadiness) Ready() bool { return s.ready }

func (s stubReadiness) Status() map[string]string {
	if s.ready {
		return map[string]string{"database": "healthy"}
	}
	return map[string]string{"database": "degraded"}
}

func TestRouter_readyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name      string
		readiness api.Readiness
		want      int
	}{
		{"no checker", nil, http.StatusOK},
		{"ready", stubReadiness{ready: true}, http.StatusOK},
		{"degraded", stubReadiness{ready: false}, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			router := api.NewRouter(ctx, api.RouterConfig{Readiness: tc.readiness}, api.NewHandler(nil, nil, zap.NewNop()), zap.NewNop())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tc.want {
				t.Errorf("got %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}
