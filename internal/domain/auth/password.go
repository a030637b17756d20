package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const passwordCost = bcrypt.DefaultCost

// bcrypt ignores input past 72 bytes, so longer passwords are refused
// rather than silently truncated.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword returns nil only when password matches hash.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
