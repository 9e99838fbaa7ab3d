package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/flightdesk/auth-service/internal/infrastructure/metrics"
)

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// BcryptHasher hashes passwords and refresh tokens with bcrypt. It holds no
// mutable state and is safe for concurrent use.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given work factor.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// HashPassword fails with bcrypt.ErrPasswordTooLong above MaxPasswordBytes.
func (h *BcryptHasher) HashPassword(plain string) (string, error) {
	defer observe("password", time.Now())
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) VerifyPassword(plain, hash string) bool {
	defer observe("password", time.Now())
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashOpaqueToken hashes a bearer token for storage. Signed tokens are longer
// than bcrypt accepts, so the token is reduced to its SHA-256 hex digest first.
func (h *BcryptHasher) HashOpaqueToken(token string) (string, error) {
	defer observe("token", time.Now())
	hash, err := bcrypt.GenerateFromPassword(digest(token), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) VerifyOpaqueToken(token, hash string) bool {
	defer observe("token", time.Now())
	return bcrypt.CompareHashAndPassword([]byte(hash), digest(token)) == nil
}

func digest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return []byte(hex.EncodeToString(sum[:]))
}

func observe(kind string, start time.Time) {
	metrics.HashDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
