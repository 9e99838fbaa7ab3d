package ports

import (
	"context"
	"time"

	"github.com/flightdesk/auth-service/internal/core/domain"
)

// CredentialStore persists users and refresh-token records.
type CredentialStore interface {
	// FindUserByEmail expects an already normalized email.
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	// CreateUser returns domain.ErrUserExists when the email is taken.
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	// UpdateUser applies the set fields of upd and returns the stored user.
	UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error)

	CreateRefreshTokenRecord(ctx context.Context, rec *domain.RefreshTokenRecord) (*domain.RefreshTokenRecord, error)
	// FindValidRefreshTokenRecords returns unrevoked records expiring after now,
	// newest first.
	FindValidRefreshTokenRecords(ctx context.Context, userID string, now time.Time) ([]*domain.RefreshTokenRecord, error)
	// RevokeRefreshTokenRecord sets revoked_at only if it is still null. It
	// returns domain.ErrRefreshTokenRevoked when no row was changed.
	RevokeRefreshTokenRecord(ctx context.Context, id string, at time.Time) error
	// RevokeAllRefreshTokenRecords revokes every unrevoked record of userID.
	RevokeAllRefreshTokenRecords(ctx context.Context, userID string, at time.Time) (int64, error)

	// Transactionally runs fn against a store bound to a single transaction.
	// Everything fn writes commits together or not at all.
	Transactionally(ctx context.Context, fn func(ctx context.Context, store CredentialStore) error) error
}
