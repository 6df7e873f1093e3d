package cli

import (
	"fmt"
	"time"

	"school-bus/internal/domain/user"
	"school-bus/internal/general/jwt"
)

// GenerateUserToken mints a short-lived JWT for a seeded crew member.
//
// Typical use (dev-only):
//
//	token, _, err := cli.GenerateUserToken(secret, "driver-1", "school-1", "DRIVER")
func GenerateUserToken(secret, userID, schoolID, roleStr string) (string, jwt.Claims, error) {
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}

	mgr := jwt.NewManager(secret, 2*time.Hour)

	token, claims, err := mgr.IssueUserToken(userID, schoolID, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return token, *claims, nil
}
