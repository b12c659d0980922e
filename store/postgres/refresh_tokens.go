package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/deviceauth"
	"github.com/jackc/pgx/v5"
)

const (
	tokenColumns = `id, user_id, token_hash, version, device_name, ip_address, user_agent,
       created_at, expires_at, last_used_at, is_revoked`

	qTokenInsert = `
INSERT INTO refresh_tokens (id, user_id, token_hash, version, device_name, ip_address, user_agent, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	qTokenByHash = `
SELECT ` + tokenColumns + `
FROM refresh_tokens
WHERE token_hash = $1;`

	qTokenTouch = `
UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1;`

	qTokenRevoke = `
UPDATE refresh_tokens SET is_revoked = TRUE WHERE id = $1 AND user_id = $2;`

	qTokenRevokeAll = `
UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE;`

	qTokenListByUser = `
SELECT ` + tokenColumns + `
FROM refresh_tokens
WHERE user_id = $1
ORDER BY created_at DESC;`

	qTokenPurge = `
DELETE FROM refresh_tokens
WHERE expires_at < $1
   OR (is_revoked = TRUE AND COALESCE(last_used_at, created_at) < $1);`
)

func (s *Store) CreateRefreshToken(ctx context.Context, rec *deviceauth.RefreshTokenRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, qTokenInsert,
		rec.ID,
		rec.UserID,
		rec.TokenHash,
		rec.Version,
		rec.Device.Name,
		rec.Device.IP,
		rec.Device.UserAgent,
		rec.CreatedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("refresh token insert: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*deviceauth.RefreshTokenRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanToken(s.pool.QueryRow(ctx, qTokenByHash, tokenHash))
}

func (s *Store) TouchRefreshToken(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, qTokenTouch, id, at); err != nil {
		return fmt.Errorf("refresh token touch: %w", err)
	}
	return nil
}

// RevokeRefreshToken marks row id revoked when userID owns it. Revoking an
// already revoked row still reports true.
func (s *Store) RevokeRefreshToken(ctx context.Context, userID, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qTokenRevoke, id, userID)
	if err != nil {
		return false, fmt.Errorf("refresh token revoke: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RevokeRefreshTokensForUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qTokenRevokeAll, userID)
	if err != nil {
		return 0, fmt.Errorf("refresh token revoke all: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListRefreshTokens(ctx context.Context, userID string) ([]deviceauth.RefreshTokenRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, qTokenListByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("query refresh tokens: %w", err)
	}
	defer rows.Close()

	var out []deviceauth.RefreshTokenRecord
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return out, nil
}

// PurgeRefreshTokens deletes rows that expired before before, and revoked
// rows last touched before before. It returns the number of deleted rows.
func (s *Store) PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qTokenPurge, before)
	if err != nil {
		return 0, fmt.Errorf("refresh token purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*deviceauth.RefreshTokenRecord, error) {
	var (
		rec      deviceauth.RefreshTokenRecord
		lastUsed *time.Time
	)
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.Version,
		&rec.Device.Name,
		&rec.Device.IP,
		&rec.Device.UserAgent,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&lastUsed,
		&rec.IsRevoked,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, deviceauth.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	if lastUsed != nil {
		rec.LastUsedAt = *lastUsed
	}
	return &rec, nil
}
