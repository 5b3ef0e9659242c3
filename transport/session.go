// Package transport adapts WebSocket connections and HTTP endpoints to
// the command/ack protocol. It owns connection lifecycles; entities
// only ever see a push/close capability.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
)

const (
	userIDParam      = "userId"
	roomIDParam      = "roomId"
	lastEventIDParam = "lastEventId"
	rejoinParam      = "rejoin"
	sessionIDParam   = "sessionId"

	writeTimeout = 10 * time.Second
)

// ParseSession builds the immutable session info for one connection
// attempt from the handshake URI. A malformed replay cursor fails the
// attempt here, before any command is routed.
func ParseSession(r *http.Request) (domain.SessionInfo, error) {
	query := r.URL.Query()
	info := domain.SessionInfo{
		SessionID: query.Get(sessionIDParam),
		UserID:    query.Get(userIDParam),
		RoomID:    query.Get(roomIDParam),
		IsRejoin:  query.Has(rejoinParam),
	}
	if info.SessionID == "" {
		info.SessionID = uuid.New().String()
	}
	if info.UserID == "" || info.RoomID == "" {
		return domain.SessionInfo{}, errors.ErrBadHandshake
	}
	if raw := query.Get(lastEventIDParam); raw != "" {
		id, err := domain.ParseEventID(raw)
		if err != nil {
			return domain.SessionInfo{}, err
		}
		info.LastEventID = &id
	}
	return info, nil
}

// SessionHandler upgrades chat connections and bridges them to the
// partition router. Duplicate live session ids are rejected here, so
// a second connection reusing an in-use id never reaches an entity.
type SessionHandler struct {
	log      *slog.Logger
	router   contract.IRouter
	upgrader websocket.Upgrader

	mu   sync.Mutex
	live map[string]struct{}
}

func NewSessionHandler(router contract.IRouter, log *slog.Logger) *SessionHandler {
	return &SessionHandler{
		log:    log,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		live: make(map[string]struct{}),
	}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info, err := ParseSession(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.claim(info.SessionID) {
		h.log.Error("terminating due to duplicate session id", "session", info.SessionID)
		http.Error(w, "duplicate session id", http.StatusConflict)
		return
	}
	defer h.release(info.SessionID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "session", info.SessionID, "error", err)
		return
	}
	h.serve(conn, info)
}

func (h *SessionHandler) serve(conn *websocket.Conn, info domain.SessionInfo) {
	sink := &wsSink{conn: conn}
	now := time.Now().UnixMilli()

	var cmd domain.Command
	if info.IsRejoin {
		cmd = domain.RejoinChat{Timestamp: now, Session: info, Listener: sink}
	} else {
		cmd = domain.JoinChat{Timestamp: now, Session: info, Listener: sink}
	}

	if _, err := h.router.Ask(context.Background(), cmd); err != nil {
		// the only recovery path is a client-initiated rejoin with its
		// last cursor, so just close
		h.log.Error("session setup failed", "session", info.SessionID,
			"room", info.RoomID, "error", err)
		_ = conn.Close()
		return
	}
	h.log.Info("chat session started", "session", info.SessionID,
		"room", info.RoomID, "user", info.UserID, "rejoin", info.IsRejoin)

	h.readLoop(conn, info)
}

type inboundMessage struct {
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

func (h *SessionHandler) readLoop(conn *websocket.Conn, info domain.SessionInfo) {
	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			h.log.Debug("read loop ended", "session", info.SessionID, "error", err)
			break
		}
		if in.Timestamp == 0 {
			in.Timestamp = time.Now().UnixMilli()
		}
		msg := domain.ChatMessage{
			Timestamp: in.Timestamp,
			UserID:    info.UserID,
			RoomID:    info.RoomID,
			Text:      in.Text,
		}
		if _, err := h.router.Ask(context.Background(), domain.AddMessage{Message: msg, Session: info}); err != nil {
			h.log.Error("message rejected", "session", info.SessionID, "error", err)
			break
		}
	}

	leave := domain.LeaveChat{Timestamp: time.Now().UnixMilli(), Session: info}
	if _, err := h.router.Ask(context.Background(), leave); err != nil {
		h.log.Warn("leave failed", "session", info.SessionID, "error", err)
	}
	_ = conn.Close()
}

func (h *SessionHandler) claim(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[sessionID]; ok {
		return false
	}
	h.live[sessionID] = struct{}{}
	return true
}

func (h *SessionHandler) release(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.live, sessionID)
}

// wsSink is the push/close capability handed to a room entity. The
// outbound pump is its only caller, but the mutex keeps write ordering
// honest should Close race a final push.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Push(env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(env)
}

func (s *wsSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(writeTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
