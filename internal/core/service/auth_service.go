package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
)

const defaultPasswordMinLength = 8

// Options holds the optional collaborators and tunables of AuthService.
type Options struct {
	PasswordMinLength int
	// Ledger short-circuits reuse of rotated refresh tokens. May be nil.
	Ledger ports.RotationLedger
	// Audit receives lifecycle events. May be nil.
	Audit ports.AuditPublisher
	Now   func() time.Time
}

// AuthService implements the credential lifecycle: registration, login,
// refresh-token rotation, logout, password change and profile access.
// It keeps no per-user state between calls.
type AuthService struct {
	store  ports.CredentialStore
	codec  ports.TokenCodec
	hasher ports.SecretHasher
	ledger ports.RotationLedger
	audit  ports.AuditPublisher

	minPasswordLen int
	dummyHash      string
	now            func() time.Time
	log            zerolog.Logger
}

// NewAuthService wires the service. It hashes one throwaway password up front
// so logins for unknown emails cost the same as logins with a wrong password.
func NewAuthService(
	store ports.CredentialStore,
	codec ports.TokenCodec,
	hasher ports.SecretHasher,
	log zerolog.Logger,
	opts Options,
) (*AuthService, error) {
	if opts.PasswordMinLength <= 0 {
		opts.PasswordMinLength = defaultPasswordMinLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummy, err := hasher.HashPassword("timing-equalizer-password")
	if err != nil {
		return nil, fmt.Errorf("auth service: prepare dummy hash: %w", err)
	}

	return &AuthService{
		store:          store,
		codec:          codec,
		hasher:         hasher,
		ledger:         opts.Ledger,
		audit:          opts.Audit,
		minPasswordLen: opts.PasswordMinLength,
		dummyHash:      dummy,
		now:            opts.Now,
		log:            log,
	}, nil
}

var _ ports.AuthService = (*AuthService)(nil)

// Register creates a user and its first session. The user row and the
// refresh-token record are written together, as the last step.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.TokenPair, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password required", domain.ErrValidation)
	}
	if err := s.validatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		s.emit(domain.AuditRegister, domain.OutcomeFailure, "", "", "email in use")
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, internalErr("register: lookup email", err)
	}

	passwordHash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, internalErr("register: hash password", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         normalizeName(in.Name),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var (
		pair   *domain.TokenPair
		userID string
	)
	err = s.store.Transactionally(ctx, func(ctx context.Context, tx ports.CredentialStore) error {
		created, err := tx.CreateUser(ctx, user)
		if err != nil {
			return err
		}
		userID = created.ID

		p, rec, err := s.mintPair(created.ID)
		if err != nil {
			return err
		}
		if _, err := tx.CreateRefreshTokenRecord(ctx, rec); err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			s.emit(domain.AuditRegister, domain.OutcomeFailure, "", "", "email in use")
			return nil, domain.ErrUserExists
		}
		return nil, internalErr("register: persist", err)
	}

	s.log.Info().Str("user_id", userID).Msg("user registered")
	s.emit(domain.AuditRegister, domain.OutcomeSuccess, userID, "", "")
	return pair, nil
}

// Login verifies credentials and opens an additional session. Existing
// sessions of the user stay valid. Unknown email and wrong password are
// reported identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password required", domain.ErrValidation)
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.hasher.VerifyPassword(password, s.dummyHash)
			s.emit(domain.AuditLogin, domain.OutcomeFailure, "", "", "unknown email")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, internalErr("login: lookup email", err)
	}

	if user.PasswordHash == "" || !s.hasher.VerifyPassword(password, user.PasswordHash) {
		s.emit(domain.AuditLogin, domain.OutcomeFailure, user.ID, "", "wrong password")
		return nil, domain.ErrInvalidCredentials
	}

	pair, rec, err := s.mintPair(user.ID)
	if err != nil {
		return nil, internalErr("login: mint", err)
	}
	created, err := s.store.CreateRefreshTokenRecord(ctx, rec)
	if err != nil {
		return nil, internalErr("login: persist refresh token", err)
	}

	s.emit(domain.AuditLogin, domain.OutcomeSuccess, user.ID, created.ID, "")
	return pair, nil
}

// Authenticate is the bearer gate of protected operations.
func (s *AuthService) Authenticate(accessToken string) (string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return "", domain.ErrUnauthorized
	}
	claims, err := s.codec.Verify(domain.TokenAccess, accessToken)
	if err != nil {
		return "", domain.ErrUnauthorized
	}
	return claims.Subject, nil
}

// CurrentUser resolves the owner of an access token.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*domain.User, error) {
	userID, err := s.Authenticate(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, internalErr("current user", err)
	}
	return user, nil
}

// UpdateProfile changes the display name. An empty name clears it.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update ports.ProfileUpdate) (*domain.User, error) {
	if update.Name == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}

	upd := domain.UserUpdate{UpdatedAt: s.now().UTC()}
	if name := normalizeName(update.Name); name != nil {
		upd.Name = name
	} else {
		upd.ClearName = true
	}

	user, err := s.store.UpdateUser(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, internalErr("update profile", err)
	}

	s.emit(domain.AuditUpdateProfile, domain.OutcomeSuccess, userID, "", "")
	return user, nil
}

// mintPair issues both tokens for userID and prepares, without persisting,
// the refresh-token record holding the hash of the new refresh token.
func (s *AuthService) mintPair(userID string) (*domain.TokenPair, *domain.RefreshTokenRecord, error) {
	access, err := s.codec.Issue(domain.TokenAccess, userID)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := s.codec.Issue(domain.TokenRefresh, userID)
	if err != nil {
		return nil, nil, err
	}
	tokenHash, err := s.hasher.HashOpaqueToken(refresh.Value)
	if err != nil {
		return nil, nil, err
	}

	rec := &domain.RefreshTokenRecord{
		UserID:    userID,
		TokenHash: tokenHash,
		TokenID:   refresh.ID,
		CreatedAt: s.now().UTC(),
		ExpiresAt: refresh.ExpiresAt,
	}
	pair := &domain.TokenPair{
		AccessToken:           access.Value,
		RefreshToken:          refresh.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
	}
	return pair, rec, nil
}

func (s *AuthService) emit(action, outcome, userID, recordID, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(domain.AuditEvent{
		Action:   action,
		Outcome:  outcome,
		UserID:   userID,
		RecordID: recordID,
		Reason:   reason,
		At:       s.now().UTC(),
	})
}

func normalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func internalErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrInternal, err)
}
