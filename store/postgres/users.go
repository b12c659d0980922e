package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/deviceauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const (
	userColumns = `id, email, password_hash, roles, token_version, is_active, created_at`

	qUserInsert = `
INSERT INTO users (id, email, password_hash, roles)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns + `;`

	qUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1;`

	qUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1;`

	qUserSetPassword = `
UPDATE users
SET password_hash = $2,
    updated_at    = NOW()
WHERE id = $1;`

	qUserBumpVersion = `
UPDATE users
SET token_version = token_version + 1,
    updated_at    = NOW()
WHERE id = $1
RETURNING token_version;`
)

func (s *Store) GetUserByID(ctx context.Context, id string) (*deviceauth.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanUser(s.pool.QueryRow(ctx, qUserByID, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*deviceauth.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanUser(s.pool.QueryRow(ctx, qUserByEmail, email))
}

// CreateUser inserts u with token version 1. A duplicate email yields
// deviceauth.ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, u deviceauth.NewUser) (*deviceauth.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}

	out, err := scanUser(s.pool.QueryRow(ctx, qUserInsert, u.ID, u.Email, u.PasswordHash, roles))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, deviceauth.ErrEmailTaken
		}
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qUserSetPassword, userID, hash)
	if err != nil {
		return fmt.Errorf("user set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return deviceauth.ErrRecordNotFound
	}
	return nil
}

// IncrementTokenVersion bumps the version in a single UPDATE, so concurrent
// callers each observe a distinct new value.
func (s *Store) IncrementTokenVersion(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var version int64
	if err := s.pool.QueryRow(ctx, qUserBumpVersion, userID).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, deviceauth.ErrRecordNotFound
		}
		return 0, fmt.Errorf("user bump version: %w", err)
	}
	return version, nil
}

func scanUser(row pgx.Row) (*deviceauth.User, error) {
	var u deviceauth.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Roles,
		&u.TokenVersion,
		&u.IsActive,
		&u.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, deviceauth.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
