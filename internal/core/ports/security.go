package ports

import (
	"context"
	"time"

	"github.com/flightdesk/auth-service/internal/core/domain"
)

// TokenCodec mints and verifies signed, expiring tokens. Implementations do
// no I/O and are safe for concurrent use.
type TokenCodec interface {
	Issue(kind domain.TokenKind, subject string) (domain.IssuedToken, error)
	// Verify returns domain.ErrInvalidSignature or domain.ErrTokenExpired on failure.
	Verify(kind domain.TokenKind, token string) (domain.TokenClaims, error)
}

// SecretHasher is a salted one-way hash used for passwords and for refresh
// tokens at rest. Calls are CPU-bound and may take tens of milliseconds.
type SecretHasher interface {
	HashPassword(plain string) (string, error)
	VerifyPassword(plain, hash string) bool
	HashOpaqueToken(token string) (string, error)
	VerifyOpaqueToken(token, hash string) bool
}

// RotationLedger remembers token ids that were already rotated away so reuse
// can be answered without a hash scan. It is advisory: the store decides.
type RotationLedger interface {
	MarkRotated(ctx context.Context, tokenID string, ttl time.Duration) error
	WasRotated(ctx context.Context, tokenID string) (bool, error)
}

// AuditPublisher accepts lifecycle events. Publish must not block.
type AuditPublisher interface {
	Publish(event domain.AuditEvent)
}

// AuditRecorder consumes lifecycle events off the request path.
type AuditRecorder interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}
