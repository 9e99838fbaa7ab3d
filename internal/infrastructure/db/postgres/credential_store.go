package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
)

const (
	pgUniqueViolation     = "23505"
	pgInvalidTextEncoding = "22P02"
)

const userColumns = `id, email, password_hash, name, email_verified, created_at, updated_at`

const tokenColumns = `id, user_id, token_hash, token_id, created_at, expires_at, revoked_at`

// CredentialStore implements ports.CredentialStore over database/sql.
// Inside Transactionally it is bound to a *sql.Tx and db is nil.
type CredentialStore struct {
	db   *sql.DB
	conn DBTX
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db, conn: db}
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u    domain.User
		name sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if name.Valid {
		u.Name = &name.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func scanRecord(row rowScanner) (*domain.RefreshTokenRecord, error) {
	var (
		r         domain.RefreshTokenRecord
		revokedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.TokenHash, &r.TokenID, &r.CreatedAt, &r.ExpiresAt, &revokedAt); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time.UTC()
		r.RevokedAt = &at
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return &r, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// userLookupErr maps a missing row, or an id that is not a uuid, to ErrUserNotFound.
func userLookupErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) || pgCode(err) == pgInvalidTextEncoding {
		return domain.ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *CredentialStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	u, err := scanUser(s.conn.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, userLookupErr("find user by email", err)
	}
	return u, nil
}

func (s *CredentialStore) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, userLookupErr("find user by id", err)
	}
	return u, nil
}

func (s *CredentialStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, name, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	created := *user
	created.ID = uuid.NewString()

	_, err := s.conn.ExecContext(ctx, query,
		created.ID, created.Email, created.PasswordHash, nullable(created.Name),
		created.EmailVerified, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &created, nil
}

func (s *CredentialStore) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	query := `
		UPDATE users SET
			password_hash = COALESCE($2, password_hash),
			name = CASE WHEN $3 THEN NULL ELSE COALESCE($4, name) END,
			updated_at = $5
		WHERE id = $1
		RETURNING ` + userColumns

	row := s.conn.QueryRowContext(ctx, query, id, nullable(upd.PasswordHash), upd.ClearName, nullable(upd.Name), upd.UpdatedAt)
	u, err := scanUser(row)
	if err != nil {
		return nil, userLookupErr("update user", err)
	}
	return u, nil
}

func (s *CredentialStore) CreateRefreshTokenRecord(ctx context.Context, rec *domain.RefreshTokenRecord) (*domain.RefreshTokenRecord, error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, token_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	created := *rec
	created.ID = uuid.NewString()

	_, err := s.conn.ExecContext(ctx, query,
		created.ID, created.UserID, created.TokenHash, created.TokenID, created.CreatedAt, created.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return &created, nil
}

func (s *CredentialStore) FindValidRefreshTokenRecords(ctx context.Context, userID string, now time.Time) ([]*domain.RefreshTokenRecord, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := s.conn.QueryContext(ctx, query, userID, now)
	if err != nil {
		if pgCode(err) == pgInvalidTextEncoding {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh tokens: %w", err)
	}
	defer rows.Close()

	var out []*domain.RefreshTokenRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return out, nil
}

func (s *CredentialStore) RevokeRefreshTokenRecord(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`

	res, err := s.conn.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if n == 0 {
		return domain.ErrRefreshTokenRevoked
	}
	return nil
}

func (s *CredentialStore) RevokeAllRefreshTokenRecords(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`

	res, err := s.conn.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return n, nil
}

// Transactionally runs fn in a single transaction. Calls made on a store
// already bound to a transaction reuse it.
func (s *CredentialStore) Transactionally(ctx context.Context, fn func(ctx context.Context, store ports.CredentialStore) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, &CredentialStore{conn: tx})
	})
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
