package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmerrifield20/ProofStamp/internal/app"
	"github.com/jmerrifield20/ProofStamp/internal/config"
	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
	"github.com/jmerrifield20/ProofStamp/internal/verify"
	"go.uber.org/zap"
)

func baseConfig() *config.Config {
	return &config.Config{
		Site:    config.SiteConfig{Origin: "https://example.com/"},
		Content: config.ContentConfig{Backend: config.BackendMemory},
		Ledger: config.LedgerConfig{
			Backend:         config.BackendMemory,
			Path:            "ledger/ledger.jsonl",
			Branch:          "main",
			ConflictRetries: 1,
		},
		Verify: config.VerifyConfig{FetchTimeout: time.Second},
	}
}

func TestNew_memoryBackends(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, baseConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	store := a.Store.(*content.MemoryStore)
	store.Put(&content.Document{ID: 1, Type: content.TypePost, Status: content.StatusPublish, Body: "<p>x</p>", Permalink: "https://example.com/x/"})

	if !a.Recorder.LedgerConfigured() {
		t.Fatal("memory ledger should be configured")
	}
	if _, err := a.Recorder.Stamp(ctx, 1); err != nil {
		t.Fatalf("Stamp: %v", err)
	}
	res, err := a.Verifier.Verify(ctx, "https://example.com/x")
	if err != nil {
		t.Fatal(err)
	}
	if res.MatchLocal != verify.Match || res.MatchLedger != verify.Match {
		t.Errorf("expected both verdicts true, got %v / %v", res.MatchLocal, res.MatchLedger)
	}

	// In-memory backends have nothing to probe.
	if names := a.Health.Names(); len(names) != 0 {
		t.Errorf("expected no probes, got %v", names)
	}
	if !a.Health.Ready() {
		t.Error("expected ready")
	}
}

func TestNew_githubWithoutCredentialsIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig()
	cfg.Ledger.Backend = config.BackendGitHub

	a, err := app.New(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Recorder.LedgerConfigured() {
		t.Error("ledger must not be configured without a token")
	}
	store := a.Store.(*content.MemoryStore)
	store.Put(&content.Document{ID: 1, Type: content.TypePost, Status: content.StatusPublish, Body: "b"})
	if _, err := a.Recorder.Stamp(ctx, 1); !errors.Is(err, ledger.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNew_badRedisURL(t *testing.T) {
	cfg := baseConfig()
	cfg.Cache.RedisURL = "not-a-redis-url"
	if _, err := app.New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for an invalid redis URL")
	}
}
