// Package auth issues and checks the HS256 tokens that guard the admin
// stamping endpoints.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// ErrNoSecret is returned by NewIssuer when the admin secret is empty.
var ErrNoSecret = errors.New("admin secret is not configured")

const (
	tokenType     = "admin"
	ctxAdminClaim = "admin_claims"
	keyInfo       = "proofstamp admin token v1"
)

// Claims are the JWT claims of an admin token.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// Issuer signs and verifies admin tokens with a shared secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIssuer creates an Issuer. The HMAC key is derived from secret with
// HKDF-SHA256 and bound to issuer. ttl defaults to 8 hours.
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(issuer), []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive admin token key: %w", err)
	}
	return &Issuer{secret: key, issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed admin token for subject.
func (i *Issuer) Issue(subject string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.New().String(),
		},
		Type: tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an admin token, returning its claims.
func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify admin token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token claims")
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("not an admin token")
	}
	return claims, nil
}

// RequireAdmin returns a Gin middleware that enforces a valid admin Bearer token.
func RequireAdmin(i *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "admin Bearer token required",
			})
			return
		}

		claims, err := i.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxAdminClaim, claims)
		c.Next()
	}
}

// ClaimsFromCtx returns the claims injected by RequireAdmin, or nil.
func ClaimsFromCtx(c *gin.Context) *Claims {
	v, _ := c.Get(ctxAdminClaim)
	claims, _ := v.(*Claims)
	return claims
}
