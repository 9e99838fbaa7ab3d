package ports

import (
	"context"

	"github.com/flightdesk/auth-service/internal/core/domain"
)

// RegisterInput is the DTO passed from the transport layer to AuthService.Register.
type RegisterInput struct {
	Email    string
	Password string
	Name     *string
}

// ProfileUpdate lists the mutable profile fields. A nil field is left as is.
type ProfileUpdate struct {
	Name *string
}

// AuthService is the credential lifecycle as seen by the transport layer.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.TokenPair, error)
	Login(ctx context.Context, email, password string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	CurrentUser(ctx context.Context, accessToken string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*domain.User, error)
	// Authenticate verifies an access token and returns its subject.
	Authenticate(accessToken string) (string, error)
}
