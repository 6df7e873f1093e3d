package jwt

import (
	"encoding/json"
	"errors"
	"strings"

	"school-bus/internal/domain/user"
)

var (
	ErrBadAuthMsg        = errors.New("invalid auth message")
	ErrBadTokenWrap      = errors.New("token must be 'Bearer <token>'")
	ErrFrameTripMismatch = errors.New("auth frame names a different trip")
)

// AuthFrame is the first message of a trip socket opened without a bearer token:
//
//	{"type":"auth","token":"Bearer <jwt>","trip_id":"<optional>"}
type AuthFrame struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	TripID string `json:"trip_id,omitempty"`
}

// AuthenticateFrame checks the auth frame of a socket watching tripID and returns the caller's claims.
// A frame that names a trip must name tripID.
func (m *Manager) AuthenticateFrame(frame []byte, tripID string, allowedRoles ...user.Role) (*Claims, error) {
	var f AuthFrame
	if err := json.Unmarshal(frame, &f); err != nil || !strings.EqualFold(strings.TrimSpace(f.Type), "auth") {
		return nil, ErrBadAuthMsg
	}
	if named := strings.TrimSpace(f.TripID); named != "" && named != tripID {
		return nil, ErrFrameTripMismatch
	}

	raw, err := bearerToken(f.Token)
	if err != nil {
		return nil, ErrBadTokenWrap
	}
	_, claims, err := m.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	if err := RoleAllowed(claims, allowedRoles...); err != nil {
		return nil, err
	}
	return claims, nil
}

// bearerToken unwraps "Bearer <token>".
func bearerToken(s string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrBadAuthScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
