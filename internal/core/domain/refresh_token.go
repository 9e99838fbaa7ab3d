package domain

import "time"

// RefreshTokenRecord is the server-side trace of an issued refresh token.
// Only the hash of the token is ever persisted.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	// TokenID is the jti claim of the issued token. It is not secret and only
	// narrows the hash scan; the hash comparison stays authoritative.
	TokenID   string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// IsValid reports whether the record is unrevoked and unexpired at now.
func (r *RefreshTokenRecord) IsValid(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}
