package service

import (
	"context"
	"errors"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
)

// Refresh exchanges a refresh token for a new pair and revokes the presented
// one. A token that was already rotated away, revoked, or lost a concurrent
// rotation yields domain.ErrTokenNotRecognized. Sibling sessions are left
// untouched.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.RefreshResult, error) {
	claims, err := s.codec.Verify(domain.TokenRefresh, refreshToken)
	if err != nil {
		s.emit(domain.AuditRefresh, domain.OutcomeFailure, "", "", err.Error())
		return nil, domain.ErrInvalidToken
	}

	user, err := s.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.emit(domain.AuditRefresh, domain.OutcomeFailure, claims.Subject, "", "unknown subject")
			return nil, domain.ErrInvalidToken
		}
		return nil, internalErr("refresh: lookup user", err)
	}

	if s.wasRotated(ctx, claims.ID) {
		s.reuseDetected(user.ID, "", "ledger hit")
		return nil, domain.ErrTokenNotRecognized
	}

	matched, err := s.matchRecord(ctx, user.ID, claims, refreshToken)
	if err != nil {
		return nil, internalErr("refresh: scan records", err)
	}
	if matched == nil {
		s.reuseDetected(user.ID, "", "no live record")
		return nil, domain.ErrTokenNotRecognized
	}

	pair, child, err := s.mintPair(user.ID)
	if err != nil {
		return nil, internalErr("refresh: mint", err)
	}

	var childID string
	err = s.store.Transactionally(ctx, func(ctx context.Context, tx ports.CredentialStore) error {
		if err := tx.RevokeRefreshTokenRecord(ctx, matched.ID, s.now().UTC()); err != nil {
			return err
		}
		created, err := tx.CreateRefreshTokenRecord(ctx, child)
		if err != nil {
			return err
		}
		childID = created.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenRevoked) {
			s.reuseDetected(user.ID, matched.ID, "concurrent rotation")
			return nil, domain.ErrTokenNotRecognized
		}
		return nil, internalErr("refresh: rotate", err)
	}

	s.markRotated(ctx, claims)
	s.log.Debug().Str("user_id", user.ID).Str("parent_id", matched.ID).Str("child_id", childID).Msg("refresh token rotated")
	s.emit(domain.AuditRefresh, domain.OutcomeSuccess, user.ID, childID, "")

	return &domain.RefreshResult{TokenPair: *pair, RotatedFromID: matched.ID}, nil
}

// Logout revokes the session of a refresh token. Invalid, expired, unknown
// and already revoked tokens all count as logged out; only store failures
// are reported.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Verify(domain.TokenRefresh, refreshToken)
	if err != nil {
		s.log.Debug().Err(err).Msg("logout with unusable token treated as done")
		return nil
	}
	if s.wasRotated(ctx, claims.ID) {
		return nil
	}

	matched, err := s.matchRecord(ctx, claims.Subject, claims, refreshToken)
	if err != nil {
		return internalErr("logout: scan records", err)
	}
	if matched == nil {
		return nil
	}

	if err := s.store.RevokeRefreshTokenRecord(ctx, matched.ID, s.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrRefreshTokenRevoked) {
			return nil
		}
		return internalErr("logout: revoke", err)
	}

	s.markRotated(ctx, claims)
	s.emit(domain.AuditLogout, domain.OutcomeSuccess, claims.Subject, matched.ID, "")
	return nil
}

// matchRecord scans the user's valid records, newest first, for the one
// whose hash matches token. Records carrying a different token id are
// skipped without paying for a bcrypt comparison.
func (s *AuthService) matchRecord(ctx context.Context, userID string, claims domain.TokenClaims, token string) (*domain.RefreshTokenRecord, error) {
	records, err := s.store.FindValidRefreshTokenRecords(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.TokenID != "" && claims.ID != "" && rec.TokenID != claims.ID {
			continue
		}
		if s.hasher.VerifyOpaqueToken(token, rec.TokenHash) {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *AuthService) wasRotated(ctx context.Context, tokenID string) bool {
	if s.ledger == nil || tokenID == "" {
		return false
	}
	rotated, err := s.ledger.WasRotated(ctx, tokenID)
	if err != nil {
		s.log.Warn().Err(err).Msg("rotation ledger lookup failed, falling back to store")
		return false
	}
	return rotated
}

func (s *AuthService) markRotated(ctx context.Context, claims domain.TokenClaims) {
	if s.ledger == nil || claims.ID == "" {
		return
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.ledger.MarkRotated(ctx, claims.ID, ttl); err != nil {
		s.log.Warn().Err(err).Msg("failed to record rotated token id")
	}
}

func (s *AuthService) reuseDetected(userID, recordID, reason string) {
	s.log.Warn().Str("user_id", userID).Str("reason", reason).Msg("refresh token reuse rejected")
	s.emit(domain.AuditRefreshReuse, domain.OutcomeFailure, userID, recordID, reason)
}
