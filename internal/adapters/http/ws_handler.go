package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/taskforge/core/internal/application/services"
	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	// sendBuffer bounds per-connection backlog; a client that cannot
	// keep up is dropped rather than blocking the fan-out.
	wsSendBuffer = 64
)

// Hub fans envelopes out to websocket connections keyed by user id.
// Envelopes for one user arrive in partition order and are written to
// each of that user's connections in the same order.
type Hub struct {
	logger *logger.Logger

	mu    sync.RWMutex
	conns map[uuid.UUID]map[*wsConn]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger: log.WithComponent("ws"),
		conns:  make(map[uuid.UUID]map[*wsConn]struct{}),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
}

// HandleEnvelope is the bus broadcast entrypoint.
func (h *Hub) HandleEnvelope(_ context.Context, env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := h.conns[env.UserID]
	targets := make([]*wsConn, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			h.logger.Warnw("Dropping slow websocket client", "user_id", env.UserID)
			h.remove(env.UserID, c)
		}
	}
	return nil
}

func (h *Hub) add(userID uuid.UUID, c *wsConn) {
	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*wsConn]struct{})
	}
	h.conns[userID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(userID uuid.UUID, c *wsConn) {
	h.mu.Lock()
	if set, ok := h.conns[userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
			if len(set) == 0 {
				delete(h.conns, userID)
			}
		}
	}
	h.mu.Unlock()
}

// Connections reports how many connections a user currently holds.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// WSHandler upgrades websocket subscriptions.
type WSHandler struct {
	hub         *Hub
	authService *services.AuthService
	logger      *logger.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(hub *Hub, authService *services.AuthService, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:         hub,
		authService: authService,
		logger:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Subscribe authenticates via the token query parameter (browsers
// cannot set headers on websocket dials), upgrades, and streams the
// user's envelopes until the peer goes away.
func (h *WSHandler) Subscribe(c echo.Context) error {
	identity, err := h.authService.VerifyToken(c.QueryParam("token"))
	if err != nil {
		return err
	}

	pathID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user id")
	}
	if pathID != identity.UserID {
		return entities.ErrTenantViolation
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	wc := &wsConn{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.hub.add(identity.UserID, wc)
	h.logger.Infow("Websocket subscribed", "user_id", identity.UserID)

	go h.writePump(identity.UserID, wc)
	go h.readPump(identity.UserID, wc)
	return nil
}

func (h *WSHandler) readPump(userID uuid.UUID, wc *wsConn) {
	defer func() {
		h.hub.remove(userID, wc)
		wc.conn.Close()
	}()

	wc.conn.SetReadLimit(512)
	_ = wc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	wc.conn.SetPongHandler(func(string) error {
		return wc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		// Clients send nothing meaningful; reads only surface closes
		// and answer pings.
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(userID uuid.UUID, wc *wsConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		wc.conn.Close()
	}()

	for {
		select {
		case data, ok := <-wc.send:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = wc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.remove(userID, wc)
				return
			}
		case <-ticker.C:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.remove(userID, wc)
				return
			}
		}
	}
}
