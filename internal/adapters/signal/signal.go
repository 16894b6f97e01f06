// Package signal is the WebSocket signaling gateway: it decodes client
// events into core operations and implements the per-peer send primitive
// rooms fan out through.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/app"
	"github.com/SuperDev321/mediasoup/internal/config"
	"github.com/SuperDev321/mediasoup/internal/domain"
)

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrPeerDisconnected = errors.New("peer disconnected")
)

type SignalWSController struct {
	App *app.Registry
	Cfg *config.Config

	mu      sync.RWMutex
	conns   map[domain.PeerID]*WsSignalConn
	pending map[string]viewTicket
	limiter *JoinRateLimiter
}

func NewSignalWSController(reg *app.Registry, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		App:     reg,
		Cfg:     cfg,
		conns:   make(map[domain.PeerID]*WsSignalConn),
		pending: make(map[string]viewTicket),
		limiter: NewJoinRateLimiter(10, joinRateWindow),
	}
}

// WsSignalConn wraps one client connection with a buffered outbound queue.
// A full queue fails the send instead of blocking the room's fan-out.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	// joined tracks room membership for disconnect cleanup.
	joined map[domain.RoomID]struct{}
}

func (c *WsSignalConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrPeerDisconnected
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *WsSignalConn) markJoined(id domain.RoomID) {
	c.mu.Lock()
	c.joined[id] = struct{}{}
	c.mu.Unlock()
}

func (c *WsSignalConn) markLeft(id domain.RoomID) {
	c.mu.Lock()
	delete(c.joined, id)
	c.mu.Unlock()
}

func (c *WsSignalConn) joinedRooms() []domain.RoomID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(c.joined))
	for id := range c.joined {
		out = append(out, id)
	}
	return out
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the connection and runs the pumps. The client token
// from the HTTP layer becomes the peer id for every room this connection
// joins.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	peerID := domain.PeerID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("peer", string(peerID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &WsSignalConn{
		conn:   ws,
		send:   make(chan []byte, 32),
		joined: make(map[domain.RoomID]struct{}),
	}

	ctl.mu.Lock()
	if old, ok := ctl.conns[peerID]; ok {
		old.Close()
	}
	ctl.conns[peerID] = conn
	ctl.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, peerID, conn)
		ctl.disconnect(peerID, conn)
	}()
}

// Send implements core.Signaler.
func (ctl *SignalWSController) Send(peer domain.PeerID, event string, payload any) error {
	ctl.mu.RLock()
	conn, ok := ctl.conns[peer]
	ctl.mu.RUnlock()
	if !ok {
		return ErrPeerDisconnected
	}
	return ctl.push(conn, event, payload)
}

// disconnect mirrors the socket "disconnecting" path: best-effort removal
// from every joined room, then garbage collection of emptied rooms.
func (ctl *SignalWSController) disconnect(peerID domain.PeerID, conn *WsSignalConn) {
	for _, roomID := range conn.joinedRooms() {
		if room, ok := ctl.App.Room(roomID); ok {
			room.RemovePeer(peerID)
			if m := ctl.App.Metrics(); m != nil {
				m.PeerLeft()
			}
			ctl.App.RemoveRoomIfEmpty(roomID)
		}
	}

	ctl.mu.Lock()
	if ctl.conns[peerID] == conn {
		delete(ctl.conns, peerID)
	}
	ctl.mu.Unlock()
	conn.Close()
	log.Info().Str("module", "signal").Str("peer", string(peerID)).Msg("disconnected")
}
