// pkg/auth/verifier.go
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the identity material extracted from a verified bearer token.
// SchoolID comes from the "sid" claim when the issuer embeds one.
type Claims struct {
	Subject  string
	Email    string
	Role     string
	SchoolID string
	Scopes   []string
}

// Verifier validates a raw bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

type jwksVerifier struct {
	issuer   string
	audience string
	jwksURL  string
	cache    *jwksCache
	jwksTTL  time.Duration
}

// NewVerifier builds a JWKS-backed verifier. The key set is refetched at most
// every six hours per URL.
func NewVerifier(issuer, audience, jwksURL string) (Verifier, error) {
	if issuer == "" || jwksURL == "" {
		return nil, errors.New("auth: issuer and jwks url required")
	}
	return &jwksVerifier{
		issuer:   strings.TrimRight(issuer, "/"),
		audience: audience,
		jwksURL:  jwksURL,
		cache:    &jwksCache{},
		jwksTTL:  6 * time.Hour,
	}, nil
}

func (v *jwksVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	set, err := v.cache.get(ctx, v.jwksURL, v.jwksTTL)
	if err != nil {
		return nil, err
	}
	parseOpts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidate(true),
		jwt.WithVerify(true),
	}
	if v.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(v.audience))
	}
	jt, err := jwt.Parse([]byte(raw), parseOpts...)
	if err != nil {
		return nil, err
	}
	return claimsFrom(jt), nil
}

func claimsFrom(jt jwt.Token) *Claims {
	c := &Claims{Subject: jt.Subject()}
	if v, ok := jt.Get("email"); ok {
		c.Email, _ = v.(string)
	}
	if v, ok := jt.Get("role"); ok {
		c.Role, _ = v.(string)
	}
	if v, ok := jt.Get("sid"); ok {
		c.SchoolID, _ = v.(string)
	}
	if v, ok := jt.Get("scope"); ok {
		if s, _ := v.(string); s != "" {
			c.Scopes = strings.Fields(s)
		}
	}
	return c
}
