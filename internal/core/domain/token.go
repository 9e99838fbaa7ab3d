package domain

import "time"

// TokenKind selects the signing secret and lifetime of a token.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// IssuedToken is a freshly minted, signed token.
type IssuedToken struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenClaims is what a successful verification yields.
type TokenClaims struct {
	Subject   string
	ID        string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// RefreshResult is a rotated pair plus the id of the record it replaced.
type RefreshResult struct {
	TokenPair
	RotatedFromID string `json:"rotatedFrom"`
}
