package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "leavedesk"
	clockSkew   = 30 * time.Second
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload. SessionID is the raw session value; the
// database only ever sees its hash.
type Claims struct {
	UserID    string `json:"uid"`
	TenantID  string `json:"tid"`
	RoleID    string `json:"rid"`
	RoleName  string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// UserContext is the authenticated caller as carried on a request context.
type UserContext struct {
	UserID    string
	TenantID  string
	RoleID    string
	RoleName  string
	SessionID string
}

func (c Claims) User() UserContext {
	return UserContext{
		UserID:    c.UserID,
		TenantID:  c.TenantID,
		RoleID:    c.RoleID,
		RoleName:  c.RoleName,
		SessionID: c.SessionID,
	}
}

// GenerateToken signs claims with HS256. Registered claims already on the
// value are replaced.
func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is empty")
	}
	issued := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   claims.UserID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature, issuer and expiry. Every failure wraps
// ErrInvalidToken.
func ParseToken(secret, raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}

// HashToken is how session identifiers are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func NewSessionID() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
