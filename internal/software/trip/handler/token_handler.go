package handler

import (
	"net/http"
	"strings"
	"time"

	"school-bus/internal/domain/user"
)

// tokenRequest asks for a development token for a crew member.
type tokenRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	SchoolID string `json:"school_id" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	SchoolID  string    `json:"school_id"`
	Role      user.Role `json:"role"`
}

// ----- Handler: POST /tokens -----

func (handler *TripHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req tokenRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	role, err := user.ParseRole(req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "role must be one of: DRIVER, SUPERVISOR, ADMIN", err)
		return
	}

	userID, schoolID := strings.TrimSpace(req.UserID), strings.TrimSpace(req.SchoolID)
	tokenString, claims, err := handler.auth.IssueUserToken(userID, schoolID, role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": userID, "school_id": schoolID, "role": role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    userID,
		SchoolID:  schoolID,
		Role:      role,
	})
}
