// Package tenant provides session management and the tenant guard that keeps
// authenticated principals inside their own tenant.
package tenant

import (
	"context"
	"database/sql"
	"time"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

// DefaultSessionTTL is how long an issued session stays valid.
const DefaultSessionTTL = 12 * time.Hour

// Session is a server-side login session. The token itself is never stored,
// only its hash.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionStore persists sessions.
type SessionStore struct {
	db     *sql.DB
	tokens *TokenGenerator
	ttl    time.Duration
}

// NewSessionStore creates a session store with the default TTL.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{
		db:     db,
		tokens: NewTokenGenerator(),
		ttl:    DefaultSessionTTL,
	}
}

// Create issues a new session for the user and returns the raw token. The
// token is shown once; subsequent lookups go through its hash.
func (st *SessionStore) Create(ctx context.Context, userID, tenantID string) (string, *Session, error) {
	token, hash, err := st.tokens.Generate()
	if err != nil {
		return "", nil, err
	}

	now := time.Now().UTC()
	session := &Session{
		TokenHash: hash,
		UserID:    userID,
		TenantID:  tenantID,
		CreatedAt: now,
		ExpiresAt: now.Add(st.ttl),
	}

	query := `
		INSERT INTO sessions (token_hash, user_id, tenant_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := st.db.ExecContext(ctx, query,
		session.TokenHash, session.UserID, session.TenantID,
		session.CreatedAt, session.ExpiresAt); err != nil {
		return "", nil, authz.NewStoreError("create session", err)
	}
	return token, session, nil
}

// Lookup resolves a raw token to its session. Returns ErrUnauthorized for
// malformed tokens, unknown tokens, and expired sessions alike.
func (st *SessionStore) Lookup(ctx context.Context, token string) (*Session, error) {
	if err := st.tokens.ValidateFormat(token); err != nil {
		return nil, authz.ErrUnauthorized
	}

	query := `
		SELECT token_hash, user_id, tenant_id, created_at, expires_at
		FROM sessions WHERE token_hash = $1`
	row := st.db.QueryRowContext(ctx, query, st.tokens.Hash(token))

	var session Session
	err := row.Scan(&session.TokenHash, &session.UserID, &session.TenantID,
		&session.CreatedAt, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, authz.ErrUnauthorized
	}
	if err != nil {
		return nil, authz.NewStoreError("lookup session", err)
	}
	if session.Expired(time.Now().UTC()) {
		return nil, authz.ErrUnauthorized
	}
	return &session, nil
}

// Delete revokes a session by raw token. Deleting an unknown token is not an
// error.
func (st *SessionStore) Delete(ctx context.Context, token string) error {
	query := `DELETE FROM sessions WHERE token_hash = $1`
	if _, err := st.db.ExecContext(ctx, query, st.tokens.Hash(token)); err != nil {
		return authz.NewStoreError("delete session", err)
	}
	return nil
}

// DeleteForUser revokes every session the user holds.
func (st *SessionStore) DeleteForUser(ctx context.Context, userID string) error {
	query := `DELETE FROM sessions WHERE user_id = $1`
	if _, err := st.db.ExecContext(ctx, query, userID); err != nil {
		return authz.NewStoreError("delete user sessions", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry. Run periodically.
func (st *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`
	res, err := st.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, authz.NewStoreError("delete expired sessions", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, authz.NewStoreError("delete expired sessions", err)
	}
	return count, nil
}
