package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/provsalt/eldercare/internal/store"
	"github.com/provsalt/eldercare/internal/token"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum control message size allowed from peer.
	maxMessageSize = 512
)

// controlMessage is what clients send: channel join/leave requests.
type controlMessage struct {
	Action string `json:"action"`
	ChatID string `json:"chatId"`
}

// Server upgrades HTTP requests to WebSocket connections and manages
// their lifecycle against the hub.
type Server struct {
	hub      *Hub
	verifier *token.Issuer
	db       store.DataStore
	redis    *store.RedisStore
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a WebSocket server. redis may be nil; presence
// tracking is then disabled.
func NewServer(hub *Hub, verifier *token.Issuer, db store.DataStore, redis *store.RedisStore, logger zerolog.Logger) *Server {
	return &Server{
		hub:      hub,
		verifier: verifier,
		db:       db,
		redis:    redis,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The API is token-authenticated; origin is not trusted.
				return true
			},
		},
	}
}

// HandleWebSocket authenticates the caller, upgrades the connection and
// starts the read/write pumps. The token is taken from the Authorization
// header or, for browser WebSocket clients that cannot set headers, the
// token query parameter.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tok := bearerToken(r)
	if tok == "" {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	identity, err := s.verifier.Verify(tok)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	// Reject tokens for accounts that no longer exist.
	if _, err := s.db.GetUserByID(r.Context(), identity.UserID); err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:     uuid.New().String(),
		userID: identity.UserID,
		send:   make(chan []byte, 256),
		chats:  make(map[uuid.UUID]bool),
	}
	s.hub.register <- c

	if s.redis != nil {
		_ = s.redis.MarkOnline(r.Context(), identity.UserID.String())
	}

	go s.writePump(conn, c)
	go s.readPump(conn, c)
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	header := r.Header.Get("Authorization")
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// readPump consumes join/leave control messages until the peer closes.
func (s *Server) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		s.hub.unregister <- c
		conn.Close()
		if s.redis != nil {
			// The request context is gone once the handler returns.
			_ = s.redis.MarkOffline(context.Background(), c.userID.String())
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("invalid control message")
			continue
		}
		s.handleControl(c, msg)
	}
}

// handleControl processes a join or leave request. A client may only join
// channels of conversations it participates in.
func (s *Server) handleControl(c *client, msg controlMessage) {
	chatID, err := uuid.Parse(msg.ChatID)
	if err != nil {
		return
	}

	switch msg.Action {
	case "join":
		conv, err := s.db.GetConversation(context.Background(), chatID)
		if err != nil || !conv.HasParticipant(c.userID) {
			s.logger.Debug().
				Str("chat", msg.ChatID).
				Str("user", c.userID.String()).
				Msg("join refused")
			return
		}
		s.hub.Subscribe(c, chatID)
	case "leave":
		s.hub.Unsubscribe(c, chatID)
	}
}

// writePump drains the client's send channel and keeps the connection
// alive with pings.
func (s *Server) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if s.redis != nil {
				// Keep the presence mark alive while the socket is open.
				_ = s.redis.MarkOnline(context.Background(), c.userID.String())
			}
		}
	}
}
