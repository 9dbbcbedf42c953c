// Package realtime implements the Session Hub (C5): the system's central
// mux. It maintains the in-memory set of live WebSocket sessions
// partitioned into logical rooms (agent, user, admin, subscribers) and
// routes events to/from the transport layer.
//
// CONNECTION LIFECYCLE:
//  1. A WebSocket upgrade request carries a client_kind and credentials.
//  2. Admission authenticates via the Auth Service (frontend) or Agent
//     Registry (agent); on failure a connect_error is sent and the
//     transport is closed.
//  3. On success the session is registered, joined to its rooms, and a
//     connect event is emitted.
//  4. readPump/writePump goroutines pump frames until the connection
//     closes, at which point the session is unregistered from every room
//     it belongs to.
//
// Within a single session, send order is preserved by the single
// writePump goroutine draining its buffered channel. Between sessions no
// ordering is promised beyond causality.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
)

func generateSessionID() string {
	return uuid.NewString()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Session is a live WebSocket session: the volatile LiveSession entity.
type Session struct {
	ID         string
	ClientKind string // models.ClientKindAgent | models.ClientKindFrontend

	// Principal: for an agent session, ComputerID is set; for a frontend
	// session, UserID and Role are set.
	ComputerID int64
	UserID     int64
	Role       string

	OpenedAt time.Time

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	rooms  map[string]bool
	closed bool
}

// frame is the uniform wire envelope: {event, data}.
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func newSession(conn *websocket.Conn, clientKind string) *Session {
	return &Session{
		ID:         generateSessionID(),
		ClientKind: clientKind,
		OpenedAt:   time.Now(),
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		rooms:      make(map[string]bool),
	}
}

// emit enqueues a single event frame for delivery. Never blocks
// indefinitely: a session whose buffer is full is considered dead and is
// closed by writePump's normal channel-close path instead.
func (s *Session) emit(event string, data interface{}) {
	payload, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		logger.Realtime().Error().Err(err).Str("event", event).Msg("failed to marshal outbound frame")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.send <- payload:
	default:
		logger.Realtime().Warn().Str("session_id", s.ID).Str("event", event).Msg("send buffer full, dropping session")
		s.closed = true
		close(s.send)
	}
}

func (s *Session) joinRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = true
}

func (s *Session) leaveRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

func (s *Session) roomsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// writePump drains the send channel to the underlying connection and
// keeps it alive with periodic pings. Exits (and closes the connection)
// when the channel is closed or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound frames and dispatches them through onFrame until
// the connection closes, then invokes onClose exactly once.
func (s *Session) readPump(onFrame func(event string, raw json.RawMessage), onClose func()) {
	defer onClose()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Realtime().Debug().Str("session_id", s.ID).Err(err).Msg("websocket read error")
			}
			return
		}

		var in struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}
		onFrame(in.Event, in.Data)
	}
}

// closeSend closes the send channel exactly once, so writePump's
// channel-close path runs on final disconnect regardless of which side
// noticed first.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}
