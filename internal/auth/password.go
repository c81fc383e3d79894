package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// VerifyPassword checks a supplied password against the stored credential.
// Stored credentials are bcrypt hashes; accounts created before hashing was
// introduced still carry plain text. Those verify by constant-time compare
// and report upgrade=true so the caller can rehash on successful login.
func VerifyPassword(stored, supplied string) (ok bool, upgrade bool) {
	if stored == "" || supplied == "" {
		return false, false
	}
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil, false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1 {
		return true, true
	}
	return false, false
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
