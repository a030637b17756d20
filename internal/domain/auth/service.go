package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultSessionTTL = 8 * time.Hour
	mfaIssuer         = "LeaveDesk"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrMFAUnavailable     = errors.New("mfa requires encryption key")
	ErrMFANotSetup        = errors.New("mfa setup required")
	ErrSessionExpired     = errors.New("session expired")
)

// SecretBox seals MFA secrets at rest.
type SecretBox interface {
	Configured() bool
	Seal(value string) ([]byte, error)
	Open(sealed []byte) (string, error)
}

type LoginResult struct {
	Token string
	User  UserContext
}

type MFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

type Service struct {
	Store      StoreAPI
	Secret     string
	Box        SecretBox
	SessionTTL time.Duration
}

func NewService(store StoreAPI, secret string, box SecretBox) *Service {
	return &Service{Store: store, Secret: secret, Box: box, SessionTTL: DefaultSessionTTL}
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (LoginResult, error) {
	user, err := s.Store.FindActiveUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := CheckPassword(user.Password, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if mfaCode == "" {
			return LoginResult{}, ErrMFARequired
		}
		secret, err := s.openSecret(user.SealedMFASecret)
		if err != nil || secret == "" || !totp.Validate(mfaCode, secret) {
			return LoginResult{}, ErrMFAInvalid
		}
	}

	sessionID, err := NewSessionID()
	if err != nil {
		return LoginResult{}, fmt.Errorf("session id: %w", err)
	}
	if err := s.Store.CreateSession(ctx, user.ID, HashToken(sessionID), time.Now().Add(s.SessionTTL)); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	claims := Claims{UserID: user.ID, TenantID: user.TenantID, RoleID: user.RoleID, RoleName: user.RoleName, SessionID: sessionID}
	token, err := GenerateToken(s.Secret, claims, s.SessionTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	if err := s.Store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.WarnContext(ctx, "update last_login failed", "userId", user.ID, "err", err)
	}
	return LoginResult{Token: token, User: claims.User()}, nil
}

func (s *Service) Logout(ctx context.Context, user UserContext) {
	if user.SessionID == "" {
		return
	}
	if err := s.Store.RevokeSession(ctx, user.UserID, HashToken(user.SessionID)); err != nil {
		slog.WarnContext(ctx, "logout session revoke failed", "userId", user.UserID, "err", err)
	}
}

// Refresh rotates the session behind a still-valid token and issues a new
// token for it.
func (s *Service) Refresh(ctx context.Context, token string) (string, error) {
	claims, err := ParseToken(s.Secret, token)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	valid, err := s.Store.SessionValid(ctx, claims.UserID, HashToken(claims.SessionID))
	if err != nil {
		return "", err
	}
	if !valid {
		return "", ErrSessionExpired
	}

	newSessionID, err := NewSessionID()
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	expires := time.Now().Add(s.SessionTTL)
	err = s.Store.RotateSession(ctx, claims.UserID, HashToken(claims.SessionID), HashToken(newSessionID), expires)
	if errors.Is(err, ErrSessionNotFound) {
		return "", ErrSessionExpired
	}
	if err != nil {
		return "", err
	}

	next := *claims
	next.SessionID = newSessionID
	return GenerateToken(s.Secret, next, s.SessionTTL)
}

func (s *Service) SetupMFA(ctx context.Context, user UserContext) (MFASetup, error) {
	if s.Box == nil || !s.Box.Configured() {
		return MFASetup{}, ErrMFAUnavailable
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: user.UserID,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return MFASetup{}, fmt.Errorf("generate mfa secret: %w", err)
	}
	encrypted, err := s.Box.Seal(key.Secret())
	if err != nil {
		return MFASetup{}, fmt.Errorf("seal mfa secret: %w", err)
	}
	if err := s.Store.UpdateMFASecret(ctx, user.UserID, encrypted); err != nil {
		return MFASetup{}, fmt.Errorf("store mfa secret: %w", err)
	}
	return MFASetup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// SetMFA enables or disables MFA after checking code against the stored
// secret.
func (s *Service) SetMFA(ctx context.Context, user UserContext, code string, enabled bool) error {
	if s.Box == nil || !s.Box.Configured() {
		return ErrMFAUnavailable
	}
	sealed, err := s.Store.GetMFASecret(ctx, user.UserID)
	if err != nil || len(sealed) == 0 {
		return ErrMFANotSetup
	}
	secret, err := s.Box.Open(sealed)
	if err != nil || !totp.Validate(code, secret) {
		return ErrMFAInvalid
	}
	return s.Store.SetMFAEnabled(ctx, user.UserID, enabled)
}

func (s *Service) openSecret(sealed []byte) (string, error) {
	if s.Box != nil && s.Box.Configured() {
		return s.Box.Open(sealed)
	}
	return string(sealed), nil
}
