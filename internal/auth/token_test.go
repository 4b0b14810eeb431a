package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmerrifield20/ProofStamp/internal/auth"
)

const issuerURL = "http://proofstamp.test"

func newTestIssuer(t *testing.T, ttl time.Duration) *auth.Issuer {
	t.Helper()
	i, err := auth.NewIssuer("s3cret", issuerURL, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return i
}

func TestIssuer_roundTrip(t *testing.T) {
	i := newTestIssuer(t, time.Hour)

	token, err := i.Issue("ops")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}

	claims, err := i.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("Subject: got %q, want ops", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestIssuer_rejects(t *testing.T) {
	i := newTestIssuer(t, time.Hour)
	other, _ := auth.NewIssuer("different", issuerURL, time.Hour)
	foreign, _ := auth.NewIssuer("s3cret", "http://elsewhere", time.Hour)
	expired := newTestIssuer(t, time.Nanosecond)

	wrongKey, _ := other.Issue("ops")
	wrongIss, _ := foreign.Issue("ops")
	stale, _ := expired.Issue("ops")
	time.Sleep(2 * time.Millisecond)

	// Signed with the raw secret instead of the derived key.
	rawKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerURL,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: "admin",
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}

	for name, tok := range map[string]string{
		"wrong key":    wrongKey,
		"wrong issuer": wrongIss,
		"expired":      stale,
		"raw secret":   rawKey,
		"garbage":      "not.a.jwt",
	} {
		if _, err := i.Verify(tok); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNewIssuer_requiresSecret(t *testing.T) {
	if _, err := auth.NewIssuer("", issuerURL, 0); !errors.Is(err, auth.ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	i := newTestIssuer(t, time.Hour)
	good, _ := i.Issue("ops")

	r := gin.New()
	r.GET("/admin", auth.RequireAdmin(i), func(c *gin.Context) {
		c.String(http.StatusOK, auth.ClaimsFromCtx(c).Subject)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + good, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status: got %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusOK && w.Body.String() != "ops" {
				t.Errorf("body: got %q", w.Body.String())
			}
		})
	}
}
