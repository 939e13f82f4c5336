// Package pgstore is a Postgres implementation of session.Backend for
// deployments that want session records to survive a Redis flush.
//
// The per-user ceiling is enforced inside the insert transaction under a
// transaction-scoped advisory lock keyed by user id; refresh rotation locks
// the session row with SELECT ... FOR UPDATE.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIssuer/session"
	"github.com/MrEthical07/goIssuer/session/pgstore/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

const sessionColumns = `id, user_id, access_hash, refresh_hash, status, expires_at, created_at, refreshed_at`

// Store is the Postgres [session.Backend].
type Store struct {
	pool *pgxpool.Pool
}

var _ session.Backend = (*Store)(nil)

// New wraps an existing pool. Call [Migrate] once before use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Create inserts sess, revoking the user's oldest active session first when
// the ceiling is reached.
func (s *Store) Create(ctx context.Context, sess *session.Session, accessToken, refreshToken string, maxActive int) (string, error) {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return "", errors.New("pgstore: id and user id are required")
	}
	sess.AccessHash = session.HashToken(accessToken)
	sess.RefreshHash = session.HashToken(refreshToken)
	if sess.Status == "" {
		sess.Status = session.StatusActive
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sess.UserID); err != nil {
		return "", unavailable(err)
	}

	var evicted string
	if maxActive > 0 {
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM sessions
			WHERE user_id = $1 AND status = 'active'
		`, sess.UserID).Scan(&count); err != nil {
			return "", unavailable(err)
		}
		if count >= maxActive {
			err := tx.QueryRow(ctx, `
				UPDATE sessions SET status = 'revoked'
				WHERE id = (
					SELECT id FROM sessions
					WHERE user_id = $1 AND status = 'active'
					ORDER BY created_at, id
					LIMIT 1
				)
				RETURNING id
			`, sess.UserID).Scan(&evicted)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return "", unavailable(err)
			}
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sess.ID, sess.UserID, sess.AccessHash, sess.RefreshHash, string(sess.Status),
		sess.ExpiresAt, sess.CreatedAt, sess.RefreshedAt)
	if err != nil {
		return "", classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", classify(err)
	}
	return evicted, nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	return s.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// GetByAccessToken resolves the session bound to an access token.
func (s *Store) GetByAccessToken(ctx context.Context, token string) (*session.Session, error) {
	return s.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE access_hash = $1`, session.HashToken(token))
}

// GetByRefreshToken resolves the session bound to a refresh token.
func (s *Store) GetByRefreshToken(ctx context.Context, token string) (*session.Session, error) {
	return s.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_hash = $1`, session.HashToken(token))
}

// Rotate swaps the token pair under a row lock on the presented refresh
// token. A concurrent rotation that waited on the lock re-reads the row,
// no longer matches the old digest and gets [session.ErrSessionNotFound].
func (s *Store) Rotate(ctx context.Context, req session.RotateRequest) (*session.Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanSession(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE refresh_hash = $1
		FOR UPDATE
	`, session.HashToken(req.PresentedRefresh)))
	if err != nil {
		return nil, err
	}
	if current.ID != req.SessionID || current.UserID != req.UserID {
		return nil, session.ErrOwnerMismatch
	}
	if current.Status != session.StatusActive {
		return nil, session.ErrNotActive
	}

	updated, err := scanSession(tx.QueryRow(ctx, `
		UPDATE sessions
		SET access_hash = $2, refresh_hash = $3, expires_at = $4, refreshed_at = $5
		WHERE id = $1
		RETURNING `+sessionColumns,
		req.SessionID,
		session.HashToken(req.NextAccess),
		session.HashToken(req.NextRefresh),
		req.ExpiresAt,
		req.RefreshedAt,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return updated, nil
}

// SetStatus applies from -> to. Sessions already in the target status are
// left untouched; other terminal sessions yield [session.ErrNotActive].
func (s *Store) SetStatus(ctx context.Context, id string, from, to session.Status) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("pgstore: invalid status transition %q -> %q", from, to)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $3
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.ErrSessionNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	if session.Status(current) == to {
		return nil
	}
	return session.ErrNotActive
}

// ListActive returns the user's active sessions, oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := []*session.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// CountActive returns the number of active sessions held by userID.
func (s *Store) CountActive(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM sessions
		WHERE user_id = $1 AND status = 'active'
	`, userID).Scan(&count)
	if err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}

// OldestActive returns the user's oldest active session.
func (s *Store) OldestActive(ctx context.Context, userID string) (*session.Session, error) {
	return s.queryOne(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at, id
		LIMIT 1
	`, userID)
}

func (s *Store) queryOne(ctx context.Context, query string, args ...interface{}) (*session.Session, error) {
	return scanSession(s.pool.QueryRow(ctx, query, args...))
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		sess   session.Session
		status string
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.AccessHash,
		&sess.RefreshHash,
		&status,
		&sess.ExpiresAt,
		&sess.CreatedAt,
		&sess.RefreshedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	sess.Status = session.Status(status)
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.RefreshedAt = sess.RefreshedAt.UTC()
	return &sess, nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return session.ErrTokenConflict
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
}
