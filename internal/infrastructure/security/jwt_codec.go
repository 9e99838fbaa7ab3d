// Package security holds the stateless credential primitives: the JWT token
// codec and the bcrypt secret hasher.
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flightdesk/auth-service/internal/core/domain"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Claims are the registered JWT claims plus the token kind.
type Claims struct {
	jwt.RegisteredClaims
	Kind domain.TokenKind `json:"typ"`
}

// CodecConfig configures a JWTCodec. Secrets must be non-empty and distinct.
type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type kindSettings struct {
	secret []byte
	ttl    time.Duration
}

// JWTCodec signs access and refresh tokens with HS256, one secret per kind.
type JWTCodec struct {
	kinds map[domain.TokenKind]kindSettings
	now   func() time.Time
}

// NewJWTCodec validates cfg and returns a codec. Zero TTLs fall back to the defaults.
func NewJWTCodec(cfg CodecConfig) (*JWTCodec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token codec: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token codec: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &JWTCodec{
		kinds: map[domain.TokenKind]kindSettings{
			domain.TokenAccess:  {secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL},
			domain.TokenRefresh: {secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL},
		},
		now: now,
	}, nil
}

// TTL returns the lifetime of tokens of the given kind.
func (c *JWTCodec) TTL(kind domain.TokenKind) time.Duration {
	return c.kinds[kind].ttl
}

// Issue mints a token of kind for subject. Every token carries a fresh jti so
// two tokens minted in the same second never collide.
func (c *JWTCodec) Issue(kind domain.TokenKind, subject string) (domain.IssuedToken, error) {
	settings, ok := c.kinds[kind]
	if !ok {
		return domain.IssuedToken{}, fmt.Errorf("token codec: unknown kind %q", kind)
	}
	if subject == "" {
		return domain.IssuedToken{}, errors.New("token codec: empty subject")
	}

	now := c.now().UTC().Truncate(time.Second)
	expires := now.Add(settings.ttl)
	id := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Kind: kind,
	})

	signed, err := token.SignedString(settings.secret)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("token codec: sign: %w", err)
	}

	return domain.IssuedToken{Value: signed, ID: id, IssuedAt: now, ExpiresAt: expires}, nil
}

// Verify checks signature, expiry and kind of token and returns its claims.
func (c *JWTCodec) Verify(kind domain.TokenKind, token string) (domain.TokenClaims, error) {
	settings, ok := c.kinds[kind]
	if !ok {
		return domain.TokenClaims{}, fmt.Errorf("token codec: unknown kind %q", kind)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return settings.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.TokenClaims{}, domain.ErrTokenExpired
		}
		return domain.TokenClaims{}, domain.ErrInvalidSignature
	}
	if !parsed.Valid || claims.Kind != kind || claims.Subject == "" {
		return domain.TokenClaims{}, domain.ErrInvalidSignature
	}

	out := domain.TokenClaims{
		Subject: claims.Subject,
		ID:      claims.ID,
		Kind:    claims.Kind,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
