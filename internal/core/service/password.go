package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
)

// ChangePassword replaces the password and revokes every unrevoked refresh
// token of the user in the same transaction.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: current and new password required", domain.ErrValidation)
	}
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		return internalErr("change password: lookup user", err)
	}

	if user.PasswordHash == "" || !s.hasher.VerifyPassword(currentPassword, user.PasswordHash) {
		s.emit(domain.AuditChangePassword, domain.OutcomeFailure, userID, "", "wrong current password")
		return domain.ErrInvalidCredentials
	}

	newHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return internalErr("change password: hash", err)
	}

	now := s.now().UTC()
	var revoked int64
	err = s.store.Transactionally(ctx, func(ctx context.Context, tx ports.CredentialStore) error {
		if _, err := tx.UpdateUser(ctx, userID, domain.UserUpdate{PasswordHash: &newHash, UpdatedAt: now}); err != nil {
			return err
		}
		n, err := tx.RevokeAllRefreshTokenRecords(ctx, userID, now)
		if err != nil {
			return err
		}
		revoked = n
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		return internalErr("change password: persist", err)
	}

	s.log.Info().Str("user_id", userID).Int64("sessions_revoked", revoked).Msg("password changed")
	s.emit(domain.AuditChangePassword, domain.OutcomeSuccess, userID, "", "")
	return nil
}

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

func (s *AuthService) validatePassword(password string) error {
	if utf8.RuneCountInString(password) < s.minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, s.minPasswordLen)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", domain.ErrValidation, maxPasswordBytes)
	}
	return nil
}
