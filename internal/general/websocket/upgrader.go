package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/general/jwt"
	"school-bus/internal/general/logger"
	"school-bus/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	authTimeout      = 10 * time.Second
	idleTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocket serves trip rooms: every socket watching a trip receives that trip's events.
type WebSocket struct {
	logger     *logger.Logger
	jwtMgr     *jwt.Manager
	uow        ports.UnitOfWork
	tripsRepo  ports.TripRepository
	writeLocks sync.Map // key: *websocket.Conn -> *sync.Mutex

	mu    sync.RWMutex
	rooms map[string]map[*websocket.Conn]struct{} // key: tripID
}

var _ ports.TripNotifier = (*WebSocket)(nil)

// NewWebSocket creates the trip-room hub with JWT auth.
func NewWebSocket(logger *logger.Logger, jwtMgr *jwt.Manager, uow ports.UnitOfWork, tripsRepo ports.TripRepository) *WebSocket {
	return &WebSocket{
		logger:    logger,
		jwtMgr:    jwtMgr,
		uow:       uow,
		tripsRepo: tripsRepo,
		rooms:     make(map[string]map[*websocket.Conn]struct{}),
	}
}

// ConnectTrip handles GET /ws/trips/{trip_id}.
//
// A token in the Authorization header or the access_token query parameter is checked before the
// upgrade. Without one, the client must send {"type":"auth","token":"Bearer <jwt>"} as its first frame.
func (ws *WebSocket) ConnectTrip(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("trip_id")
	if tripID == "" {
		http.Error(w, "trip_id is required", http.StatusBadRequest)
		return
	}

	var claims *jwt.Claims
	if raw, err := jwt.FromAuthorization(r); err == nil {
		_, c, err := ws.jwtMgr.ParseAndValidate(raw)
		if err != nil {
			ws.logger.Error(r.Context(), "ws_auth_failed", "Invalid token on upgrade request", err, nil)
			http.Error(w, "authentication failed: invalid token", http.StatusUnauthorized)
			return
		}
		claims = c
	}

	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	// Teardown order (LIFO on return):
	defer conn.Close()
	defer ws.writeLocks.Delete(conn)

	conn.SetReadLimit(1 << 20) // 1 MiB

	// 2) First-frame auth when the request carried no token
	if claims == nil {
		claims = ws.readAuthFrame(r.Context(), conn, tripID)
		if claims == nil {
			return
		}
	}

	// 3) The trip must belong to the caller's school
	if err := ws.checkTrip(r.Context(), claims.SchoolID, tripID); err != nil {
		ws.logger.Error(r.Context(), "ws_trip_lookup_failed", "Trip not visible to caller", err, map[string]any{
			"trip_id": tripID, "user_id": claims.Subject,
		})
		msg := "internal server error"
		if errors.Is(err, trip.ErrNotFound) {
			msg = "trip not found"
		}
		_ = ws.sendAuthError(conn, msg)
		return
	}

	// 4) Join the room before acknowledging, so nothing published after auth_success is missed
	ws.join(tripID, conn)
	defer ws.leave(tripID, conn)

	if err := ws.sendAuthSuccess(conn, tripID, claims.Subject); err != nil {
		ws.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	ctx := ws.logger.WithTripID(ws.logger.WithSchoolID(r.Context(), claims.SchoolID), tripID)
	ws.logger.Info(ctx, "ws_connected", "Trip WebSocket connected", map[string]any{
		"user_id": claims.Subject, "role": claims.Role.String(),
	})

	// 5) Keepalive
	_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	done := make(chan struct{})
	defer close(done)
	go ws.pingLoop(ctx, conn, done)

	// 6) Read loop: clients only send pings; everything else is rejected
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.logger.Error(ctx, "ws_unexpected_close", "Trip connection closed unexpectedly", err, map[string]any{
					"user_id": claims.Subject,
				})
				ws.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				ws.logger.Info(ctx, "ws_connection_closed", "Trip connection closed normally", map[string]any{
					"user_id": claims.Subject,
				})
				ws.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = ws.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch msg.Type {
		case "ping":
			_ = ws.writeJSON(conn, map[string]any{"type": "pong", "timestamp": time.Now().UTC().Format(time.RFC3339)})
		default:
			_ = ws.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

// readAuthFrame waits for the auth frame and returns nil after answering the client on failure.
func (ws *WebSocket) readAuthFrame(ctx context.Context, conn *websocket.Conn, tripID string) *jwt.Claims {
	if err := conn.SetReadDeadline(time.Now().Add(authTimeout)); err != nil {
		ws.logger.Error(ctx, "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		_ = ws.sendAuthError(conn, "internal server error")
		return nil
	}

	mt, first, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			ws.logger.Error(ctx, "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			ws.logger.Error(ctx, "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		_ = ws.sendAuthError(conn, "authentication timeout: please send auth message within 10 seconds")
		return nil
	}
	if mt != websocket.TextMessage {
		ws.logger.Error(ctx, "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		_ = ws.sendAuthError(conn, "auth message must be in text format")
		return nil
	}

	claims, err := ws.jwtMgr.AuthenticateFrame(first, tripID, user.RoleDriver, user.RoleSupervisor, user.RoleAdmin)
	if err != nil {
		ws.logger.Error(ctx, "ws_auth_failed", "Invalid auth message or token", err, nil)
		msg := "authentication failed: invalid token"
		if errors.Is(err, jwt.ErrFrameTripMismatch) {
			msg = "authentication failed: frame is for another trip"
		}
		_ = ws.sendAuthError(conn, msg)
		return nil
	}
	return claims
}

func (ws *WebSocket) checkTrip(ctx context.Context, schoolID, tripID string) error {
	return ws.uow.WithinTx(ctx, func(ctx context.Context) error {
		_, err := ws.tripsRepo.GetByID(ctx, schoolID, tripID)
		return err
	})
}

func (ws *WebSocket) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			mu := ws.lockOf(conn)
			mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				// Close socket to unblock reader.
				_ = conn.Close()
				ws.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, nil)
				return
			}
		}
	}
}

// sendAuthError sends authentication error message to client
func (ws *WebSocket) sendAuthError(conn *websocket.Conn, message string) error {
	return ws.writeJSON(conn, map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	})
}

// sendAuthSuccess sends authentication success message to client
func (ws *WebSocket) sendAuthSuccess(conn *websocket.Conn, tripID, userID string) error {
	return ws.writeJSON(conn, map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		"trip_id":   tripID,
		"user_id":   userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
