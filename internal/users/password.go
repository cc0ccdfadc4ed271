package users

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const resetTokenBytes = 32

// CorrectPassword reports whether plain matches the stored hash. The
// comparison is constant-time with respect to the hash contents.
func (u *User) CorrectPassword(plain string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// ChangedPasswordSince reports whether the password changed after issuedAt.
// Both instants are compared at whole-second precision, the precision of
// session token timestamps.
func (u *User) ChangedPasswordSince(issuedAt time.Time) bool {
	if u == nil || u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}

// CreateResetToken generates a one-time reset token, stores its digest and
// expiry on the user and returns the raw token. The caller persists the user.
func (u *User) CreateResetToken(now time.Time, ttl time.Duration) (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("users: generate reset token: %w", err)
	}
	raw := hex.EncodeToString(buf)
	digest := HashResetToken(raw)
	expiresAt := now.Add(ttl).UTC()
	u.ResetTokenHash = &digest
	u.ResetTokenExpiresAt = &expiresAt
	return raw, nil
}

// ResetTokenValid reports whether the stored reset token is still usable at now.
func (u *User) ResetTokenValid(now time.Time) bool {
	if u == nil || u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
		return false
	}
	return now.Before(*u.ResetTokenExpiresAt)
}

// ClearResetToken drops any pending reset token.
func (u *User) ClearResetToken() {
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
}

// HashResetToken returns the stored form of a raw reset token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func hashPassword(plain string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hashed), nil
}
