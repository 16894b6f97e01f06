package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

const writeDeadline = 5 * time.Second

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, peerID domain.PeerID, c *WsSignalConn) {
	defer log.Info().Str("module", "signal").Str("peer", string(peerID)).Msg("readPump closing")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(ctx, peerID, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "createMediaRoom":
		ctl.handleCreateRoom(ctx, peerID, c, data)
	case "joinMedia":
		ctl.handleJoin(ctx, peerID, c, data)
	case "getProducers":
		ctl.handleGetProducers(peerID, c, data)
	case "getRouterRtpCapabilities":
		ctl.handleRouterCapabilities(c, data)
	case "getMyRoomInfo":
		ctl.handleRoomInfo(c, data)
	case "exitRoom":
		ctl.handleExitRoom(peerID, c, data)
	case "exit":
		ctl.handleExit(peerID, c)
	case "createWebRtcTransport":
		ctl.handleCreateTransport(ctx, peerID, c, data)
	case "connectTransport":
		ctl.handleConnectTransport(ctx, peerID, c, data)
	case "produce":
		ctl.handleProduce(ctx, peerID, c, data)
	case "consume":
		ctl.handleConsume(ctx, peerID, c, data)
	case "producerClosed":
		ctl.handleProducerClosed(peerID, data)
	case "roomProducersClosed":
		ctl.handleAllProducersClosed(peerID, data)
	case "pauseProducer":
		ctl.handlePauseProducer(peerID, c, data)
	case "resumeProducer":
		ctl.handleResumeProducer(peerID, c, data)
	case "start view":
		ctl.handleStartView(data)
	case "stop view":
		ctl.handleStopView(data)
	case "stop broadcast":
		ctl.handleStopBroadcast(peerID, c, data)
	case "view request":
		ctl.handleViewRequest(peerID, c, data)
	case "view response":
		ctl.handleViewResponse(peerID, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) push(c *WsSignalConn, event string, payload any) error {
	b, err := json.Marshal(envelope{Type: event, Data: payload})
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, event string, payload any) {
	if err := ctl.push(c, event, payload); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("event", event).Msg("send")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, op, msg string) {
	ctl.sendJSON(c, "error", map[string]string{"op": op, "error": msg})
}
