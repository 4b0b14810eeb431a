package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/ProofStamp/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestLoad_defaults(t *testing.T) {
	chdir(t, t.TempDir())

	c, err := config.Load(viper.New(), "", zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Errorf("server.port: got %d", c.Server.Port)
	}
	if c.Ledger.Path != "ledger/ledger.jsonl" || c.Ledger.Branch != "main" {
		t.Errorf("ledger location: got %s@%s", c.Ledger.Path, c.Ledger.Branch)
	}
	if c.Ledger.Timeout != 15*time.Second || c.Ledger.WriteTimeout != 20*time.Second {
		t.Errorf("ledger timeouts: got %s / %s", c.Ledger.Timeout, c.Ledger.WriteTimeout)
	}
	if c.Ledger.ConflictRetries != 1 {
		t.Errorf("conflict_retries: got %d", c.Ledger.ConflictRetries)
	}
	if c.Cache.TTL != 30*time.Second {
		t.Errorf("cache.ttl: got %s", c.Cache.TTL)
	}
	if len(c.Server.CORSOrigins) != 1 {
		t.Errorf("cors_origins: got %v", c.Server.CORSOrigins)
	}
	if c.Server.VerifyRPS != 1 {
		t.Errorf("verify_rate_limit_rps: got %v", c.Server.VerifyRPS)
	}
	if c.Verify.AllowPrivateHosts || len(c.Verify.AllowedHosts) != 0 {
		t.Errorf("verify fetch policy should default to public hosts only, got %+v", c.Verify)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEDGER_OWNER", "acme")
	t.Setenv("LEDGER_REPO", "proofs")
	t.Setenv("LEDGER_TIMEOUT", "3s")
	t.Setenv("SITE_ORIGIN", "https://blog.example.com")

	c, err := config.Load(viper.New(), "", zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Ledger.Owner != "acme" || c.Ledger.Repo != "proofs" {
		t.Errorf("owner/repo: got %s/%s", c.Ledger.Owner, c.Ledger.Repo)
	}
	if c.Ledger.Timeout != 3*time.Second {
		t.Errorf("timeout: got %s", c.Ledger.Timeout)
	}
	if c.Site.Origin != "https://blog.example.com/" {
		t.Errorf("site.origin should gain a trailing slash, got %s", c.Site.Origin)
	}

	gh := c.Ledger.GitHub()
	if gh.Owner != "acme" || gh.ReadTimeout != 3*time.Second || gh.WriteTimeout != 20*time.Second {
		t.Errorf("GitHub(): got %+v", gh)
	}
}

func TestLoad_file(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	yaml := strings.Join([]string{
		"content:",
		"  backend: memory",
		"ledger:",
		"  backend: memory",
		"  conflict_retries: 3",
		"server:",
		"  admin_secret: hunter2",
	}, "\n")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := config.Load(viper.New(), file, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Content.Backend != config.BackendMemory || c.Ledger.Backend != config.BackendMemory {
		t.Errorf("backends: got %s / %s", c.Content.Backend, c.Ledger.Backend)
	}
	if c.Ledger.ConflictRetries != 3 || c.Server.AdminSecret != "hunter2" {
		t.Errorf("unexpected values: %+v", c)
	}
}

func TestLoad_missingExplicitFile(t *testing.T) {
	if _, err := config.Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop()); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEDGER_BACKEND", "s3")

	if _, err := config.Load(viper.New(), "", zap.NewNop()); err == nil || !strings.Contains(err.Error(), "ledger.backend") {
		t.Errorf("expected ledger.backend error, got %v", err)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
