package jwt

import (
	"time"

	"school-bus/internal/domain/user"
	"school-bus/internal/ports"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines our canonical JWT claims payload.
type Claims struct {
	Role     user.Role `json:"role"`      // crew role for RBAC (DRIVER/SUPERVISOR/ADMIN)
	SchoolID string    `json:"school_id"` // tenant every read and write is scoped to
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims constructs crew claims.
func NewUserClaims(userID, schoolID string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role:     role,
		SchoolID: schoolID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// Actor converts the claims into the caller identity the services expect.
func (c *Claims) Actor() ports.Actor {
	return ports.Actor{ID: c.Subject, SchoolID: c.SchoolID, Role: c.Role}
}
