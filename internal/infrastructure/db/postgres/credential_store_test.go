package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightdesk/auth-service/internal/core/domain"
	"github.com/flightdesk/auth-service/internal/core/ports"
)

var (
	userCols  = []string{"id", "email", "password_hash", "name", "email_verified", "created_at", "updated_at"}
	tokenCols = []string{"id", "user_id", "token_hash", "token_id", "created_at", "expires_at", "revoked_at"}
	testNow   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newStoreWithMock(t *testing.T) (*CredentialStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCredentialStore(db), mock
}

func TestFindUserByEmail_Found(t *testing.T) {
	store, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows(userCols).
		AddRow("u-1", "ada@example.com", "hash", "Ada", false, testNow, testNow)
	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	u, err := store.FindUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
	require.NotNil(t, u.Name)
	assert.Equal(t, "Ada", *u.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserByEmail_NullName(t *testing.T) {
	store, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows(userCols).
		AddRow("u-1", "ada@example.com", "hash", nil, true, testNow, testNow)
	mock.ExpectQuery(`FROM users WHERE lower\(email\)`).WillReturnRows(rows)

	u, err := store.FindUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, u.Name)
	assert.True(t, u.EmailVerified)
}

func TestFindUserByEmail_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM users WHERE lower\(email\)`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindUserByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestFindUserByID_NotUUID(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: pgInvalidTextEncoding})

	_, err := store.FindUserByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestFindUserByID_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WillReturnError(errors.New("db down"))

	_, err := store.FindUserByID(context.Background(), "u-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUserNotFound)
	assert.Contains(t, err.Error(), "db down")
}

func TestCreateUser_Success(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)INSERT INTO users \(id, email, password_hash, name, email_verified, created_at, updated_at\)`).
		WithArgs(sqlmock.AnyArg(), "ada@example.com", "hash", nil, false, testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := store.CreateUser(context.Background(), &domain.User{
		Email: "ada@example.com", PasswordHash: "hash", CreatedAt: testNow, UpdatedAt: testNow,
	})
	require.NoError(t, err)
	assert.Len(t, u.ID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Duplicate(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_lower_key"})

	_, err := store.CreateUser(context.Background(), &domain.User{Email: "ada@example.com"})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestUpdateUser_PasswordOnly(t *testing.T) {
	store, mock := newStoreWithMock(t)
	hash := "new-hash"

	rows := sqlmock.NewRows(userCols).
		AddRow("u-1", "ada@example.com", "new-hash", "Ada", false, testNow, testNow)
	mock.ExpectQuery(`(?s)UPDATE users SET.+COALESCE\(\$2, password_hash\).+RETURNING`).
		WithArgs("u-1", "new-hash", false, nil, testNow).
		WillReturnRows(rows)

	u, err := store.UpdateUser(context.Background(), "u-1", domain.UserUpdate{PasswordHash: &hash, UpdatedAt: testNow})
	require.NoError(t, err)
	assert.Equal(t, "new-hash", u.PasswordHash)
	require.NotNil(t, u.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_ClearName(t *testing.T) {
	store, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows(userCols).
		AddRow("u-1", "ada@example.com", "hash", nil, false, testNow, testNow)
	mock.ExpectQuery(`UPDATE users SET`).
		WithArgs("u-1", nil, true, nil, testNow).
		WillReturnRows(rows)

	u, err := store.UpdateUser(context.Background(), "u-1", domain.UserUpdate{ClearName: true, UpdatedAt: testNow})
	require.NoError(t, err)
	assert.Nil(t, u.Name)
}

func TestUpdateUser_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`UPDATE users SET`).WillReturnError(sql.ErrNoRows)

	_, err := store.UpdateUser(context.Background(), "u-1", domain.UserUpdate{UpdatedAt: testNow})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCreateRefreshTokenRecord(t *testing.T) {
	store, mock := newStoreWithMock(t)
	expires := testNow.Add(time.Hour)

	mock.ExpectExec(`(?s)INSERT INTO refresh_tokens \(id, user_id, token_hash, token_id, created_at, expires_at\)`).
		WithArgs(sqlmock.AnyArg(), "u-1", "bcrypt-hash", "jti-1", testNow, expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := store.CreateRefreshTokenRecord(context.Background(), &domain.RefreshTokenRecord{
		UserID: "u-1", TokenHash: "bcrypt-hash", TokenID: "jti-1", CreatedAt: testNow, ExpiresAt: expires,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Nil(t, rec.RevokedAt)
}

func TestFindValidRefreshTokenRecords(t *testing.T) {
	store, mock := newStoreWithMock(t)
	expires := testNow.Add(time.Hour)

	rows := sqlmock.NewRows(tokenCols).
		AddRow("rt-2", "u-1", "h2", "jti-2", testNow, expires, nil).
		AddRow("rt-1", "u-1", "h1", "jti-1", testNow.Add(-time.Minute), expires, nil)
	mock.ExpectQuery(`(?s)FROM refresh_tokens\s+WHERE user_id = \$1 AND revoked_at IS NULL AND expires_at > \$2\s+ORDER BY created_at DESC`).
		WithArgs("u-1", testNow).
		WillReturnRows(rows)

	recs, err := store.FindValidRefreshTokenRecords(context.Background(), "u-1", testNow)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "rt-2", recs[0].ID)
	assert.Equal(t, "jti-1", recs[1].TokenID)
}

func TestRevokeRefreshTokenRecord(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = \$2 WHERE id = \$1 AND revoked_at IS NULL`).
		WithArgs("rt-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = \$2 WHERE id = \$1 AND revoked_at IS NULL`).
		WithArgs("rt-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.RevokeRefreshTokenRecord(context.Background(), "rt-1", testNow))
	err := store.RevokeRefreshTokenRecord(context.Background(), "rt-1", testNow)
	assert.ErrorIs(t, err, domain.ErrRefreshTokenRevoked)
}

func TestRevokeAllRefreshTokenRecords(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = \$2 WHERE user_id = \$1 AND revoked_at IS NULL`).
		WithArgs("u-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.RevokeAllRefreshTokenRecords(context.Background(), "u-1", testNow)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestTransactionally_Commit(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
		WithArgs("rt-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Transactionally(context.Background(), func(ctx context.Context, tx ports.CredentialStore) error {
		if err := tx.RevokeRefreshTokenRecord(ctx, "rt-1", testNow); err != nil {
			return err
		}
		_, err := tx.CreateRefreshTokenRecord(ctx, &domain.RefreshTokenRecord{UserID: "u-1", CreatedAt: testNow, ExpiresAt: testNow})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionally_RollbackOnLostRace(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Transactionally(context.Background(), func(ctx context.Context, tx ports.CredentialStore) error {
		if err := tx.RevokeRefreshTokenRecord(ctx, "rt-1", testNow); err != nil {
			return err
		}
		t.Fatal("child record must not be written after a lost race")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrRefreshTokenRevoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionally_Nested(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.Transactionally(context.Background(), func(ctx context.Context, tx ports.CredentialStore) error {
		return tx.Transactionally(ctx, func(context.Context, ports.CredentialStore) error { return nil })
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	defer func() { gooseUp = orig }()

	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMigrate_PropagatesError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("boom") }
	defer func() { gooseUp = orig }()

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMigrations_KeepRefreshTokensOnUserDelete(t *testing.T) {
	body, err := migrations.ReadFile("migrations/00002_create_refresh_tokens.sql")
	require.NoError(t, err)

	assert.Contains(t, string(body), "REFERENCES users (id)")
	assert.NotContains(t, strings.ToUpper(string(body)), "ON DELETE")
}
