package transport

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/model"
)

var errUnknownKey = errors.New("jwks: unknown signing key")

// KeySet fetches and caches the identity provider's JSON Web Key Set.
type KeySet struct {
	mu         sync.RWMutex
	url        string
	keys       map[string]crypto.PublicKey
	fetchedAt  time.Time
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// NewKeySet creates a KeySet reading url and keeping keys for ttl.
func NewKeySet(url string, ttl time.Duration, logger *zap.Logger) *KeySet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeySet{
		url:        url,
		keys:       make(map[string]crypto.PublicKey),
		ttl:        ttl,
		minRefresh: 5 * time.Minute,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Key returns the public key for kid, refreshing the set when the key is
// unknown or the cache has expired. A failed refresh falls back to a cached
// key when one exists.
func (k *KeySet) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	k.mu.RLock()
	key, ok := k.keys[kid]
	stale := time.Since(k.fetchedAt) > k.ttl
	k.mu.RUnlock()

	if ok && !stale {
		return key, nil
	}

	if err := k.refresh(ctx); err != nil {
		if ok {
			k.logger.Warn("jwks: refresh failed, using cached key",
				zap.String("kid", kid),
				zap.Error(err),
			)
			return key, nil
		}
		return nil, fmt.Errorf("jwks: fetch failed: %w", err)
	}

	k.mu.RLock()
	key, ok = k.keys[kid]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownKey, kid)
	}
	return key, nil
}

func (k *KeySet) refresh(ctx context.Context) error {
	k.mu.RLock()
	recent := len(k.keys) > 0 && time.Since(k.fetchedAt) < k.minRefresh
	k.mu.RUnlock()
	if recent {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("jwks: parse error: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, j := range set.Keys {
		if j.Kid == "" {
			continue
		}
		pub, err := j.publicKey()
		if err != nil {
			k.logger.Warn("jwks: skipping key", zap.String("kid", j.Kid), zap.Error(err))
			continue
		}
		if pub != nil {
			keys[j.Kid] = pub
		}
	}

	k.mu.Lock()
	k.keys = keys
	k.fetchedAt = time.Now()
	k.mu.Unlock()

	k.logger.Debug("jwks: refreshed", zap.Int("keys", len(keys)))
	return nil
}

// jwk is one entry of a key set. Only RSA and EC signing keys are used.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// publicKey decodes the key material. Unsupported key types yield nil.
func (j jwk) publicKey() (crypto.PublicKey, error) {
	switch j.Kty {
	case "RSA":
		n, err := decodeInt("n", j.N)
		if err != nil {
			return nil, err
		}
		e, err := decodeInt("e", j.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		var curve elliptic.Curve
		switch j.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", j.Crv)
		}
		x, err := decodeInt("x", j.X)
		if err != nil {
			return nil, err
		}
		y, err := decodeInt("y", j.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	default:
		return nil, nil
	}
}

func decodeInt(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", name)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return new(big.Int).SetBytes(b), nil
}

// Authenticate returns middleware that verifies the bearer token against
// keys and the configured issuer, audience and algorithms, then stores the
// verified claims in the request context.
func Authenticate(cfg config.IdentityConfig, keys *KeySet, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(cfg.Algorithms),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(ctx, w, model.NewUnauthorizedError("Missing or malformed bearer token"))
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				kid, _ := t.Header["kid"].(string)
				if kid == "" {
					return nil, fmt.Errorf("%w: missing kid", errUnknownKey)
				}
				return keys.Key(ctx, kid)
			})
			if err != nil || !token.Valid {
				reason := rejectionReason(err)
				logger.Warn("auth: token rejected",
					zap.String("reason", reason),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				WriteError(ctx, w, model.NewUnauthorizedError(reason))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

func rejectionReason(err error) string {
	switch {
	case err == nil:
		return "Invalid token"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "Token is missing a required claim"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, errUnknownKey):
		return "Unknown signing key"
	case strings.Contains(err.Error(), "signing method"):
		return "Disallowed signing algorithm"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}
