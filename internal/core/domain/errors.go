package domain

import "errors"

// Caller-facing error kinds. The HTTP layer maps each of them to a status code.
var (
	ErrValidation         = errors.New("validation error")
	ErrUserExists         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrTokenNotRecognized = errors.New("refresh token not recognized")
	ErrUnauthorized       = errors.New("invalid or expired access token")
	ErrUserNotFound       = errors.New("user not found")
	ErrInternal           = errors.New("internal error")
)

// Token codec errors.
var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
)

// ErrRefreshTokenRevoked is returned by a store when a conditional revoke
// finds the record missing or already revoked.
var ErrRefreshTokenRevoked = errors.New("refresh token already revoked")
