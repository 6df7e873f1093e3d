package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteClose sends a close control frame with the given code and reason.
func (ws *WebSocket) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// wsWriteMessage sets a short write deadline and writes a message.
func (ws *WebSocket) wsWriteMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// lockOf returns the mutex for a specific connection
func (ws *WebSocket) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := ws.writeLocks.Load(conn); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := ws.writeLocks.LoadOrStore(conn, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (ws *WebSocket) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.wsWriteMessage(conn, websocket.TextMessage, payload)
}

func (ws *WebSocket) join(tripID string, conn *websocket.Conn) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	room, ok := ws.rooms[tripID]
	if !ok {
		room = make(map[*websocket.Conn]struct{})
		ws.rooms[tripID] = room
	}
	room[conn] = struct{}{}
}

func (ws *WebSocket) leave(tripID string, conn *websocket.Conn) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	room := ws.rooms[tripID]
	delete(room, conn)
	if len(room) == 0 {
		delete(ws.rooms, tripID)
	}
}

// Watchers returns how many sockets are in the trip's room.
func (ws *WebSocket) Watchers(tripID string) int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.rooms[tripID])
}

// BroadcastToTrip sends msg to every socket in the trip's room. Sockets that fail the write are dropped.
func (ws *WebSocket) BroadcastToTrip(tripID string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		ws.logger.Error(context.Background(), "ws_broadcast_marshal_failed", "Failed to marshal trip event", err, map[string]any{
			"trip_id": tripID,
		})
		return
	}

	ws.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(ws.rooms[tripID]))
	for c := range ws.rooms[tripID] {
		conns = append(conns, c)
	}
	ws.mu.RUnlock()

	for _, c := range conns {
		if err := ws.wsWriteMessage(c, websocket.TextMessage, payload); err != nil {
			ws.logger.Error(context.Background(), "ws_broadcast_failed", "Failed to push trip event", err, map[string]any{
				"trip_id": tripID,
			})
			ws.leave(tripID, c)
			_ = c.Close()
		}
	}
}
