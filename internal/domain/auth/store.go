package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"leavedesk/internal/platform/querier"
)

const UserStatusActive = "active"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found or no longer active")
)

type AuthUser struct {
	ID              string
	TenantID        string
	RoleID          string
	RoleName        string
	Password        string
	MFAEnabled      bool
	SealedMFASecret []byte
}

type StoreAPI interface {
	FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error)
	CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error
	UpdateLastLogin(ctx context.Context, userID string) error
	RevokeSession(ctx context.Context, userID, sessionHash string) error
	SessionValid(ctx context.Context, userID, sessionHash string) (bool, error)
	RotateSession(ctx context.Context, userID, oldHash, newHash string, expires time.Time) error
	UpdateMFASecret(ctx context.Context, userID string, sealed []byte) error
	GetMFASecret(ctx context.Context, userID string) ([]byte, error)
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

// FindActiveUserByEmail matches email case-insensitively.
func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	var u AuthUser
	err := s.DB.QueryRow(ctx, `
    SELECT u.id, u.tenant_id, u.role_id, r.name, u.password_hash, u.mfa_enabled, u.mfa_secret_enc
    FROM users u
    JOIN roles r ON r.id = u.role_id
    WHERE lower(u.email) = lower($1) AND u.status = $2
  `, email, UserStatusActive).Scan(&u.ID, &u.TenantID, &u.RoleID, &u.RoleName, &u.Password, &u.MFAEnabled, &u.SealedMFASecret)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return AuthUser{}, ErrUserNotFound
	case err != nil:
		return AuthUser{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error {
	if _, err := s.DB.Exec(ctx, `
    INSERT INTO sessions (user_id, refresh_token, expires_at) VALUES ($1, $2, $3)
  `, userID, sessionHash, expires); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	return s.exec(ctx, "update last login", "UPDATE users SET last_login = now() WHERE id = $1", userID)
}

func (s *Store) RevokeSession(ctx context.Context, userID, sessionHash string) error {
	return s.exec(ctx, "revoke session", `
    UPDATE sessions SET revoked_at = now()
    WHERE user_id = $1 AND refresh_token = $2 AND revoked_at IS NULL
  `, userID, sessionHash)
}

func (s *Store) SessionValid(ctx context.Context, userID, sessionHash string) (bool, error) {
	var live bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM sessions
      WHERE user_id = $1 AND refresh_token = $2 AND expires_at > now() AND revoked_at IS NULL
    )
  `, userID, sessionHash).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return live, nil
}

// RotateSession swaps the session hash in place. Only a live session can be
// rotated, so a replayed refresh token loses the race and gets
// ErrSessionNotFound.
func (s *Store) RotateSession(ctx context.Context, userID, oldHash, newHash string, expires time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE sessions
    SET refresh_token = $1, expires_at = $2, rotated_at = now()
    WHERE user_id = $3 AND refresh_token = $4 AND revoked_at IS NULL AND expires_at > now()
  `, newHash, expires, userID, oldHash)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateMFASecret stores a new sealed secret and turns MFA off until the
// user confirms a code against it.
func (s *Store) UpdateMFASecret(ctx context.Context, userID string, sealed []byte) error {
	return s.exec(ctx, "store mfa secret", "UPDATE users SET mfa_secret_enc = $1, mfa_enabled = false WHERE id = $2", sealed, userID)
}

func (s *Store) GetMFASecret(ctx context.Context, userID string) ([]byte, error) {
	var sealed []byte
	err := s.DB.QueryRow(ctx, "SELECT mfa_secret_enc FROM users WHERE id = $1", userID).Scan(&sealed)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("load mfa secret: %w", err)
	}
	return sealed, nil
}

func (s *Store) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.exec(ctx, "set mfa", "UPDATE users SET mfa_enabled = $1 WHERE id = $2", enabled, userID)
}

// HasPermission backs the route-level permission middleware.
func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var granted bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM role_permissions rp
      JOIN permissions p ON p.id = rp.permission_id
      WHERE rp.role_id = $1 AND p.key = $2
    )
  `, roleID, permission).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return granted, nil
}

func (s *Store) exec(ctx context.Context, op, sql string, args ...any) error {
	if _, err := s.DB.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
