package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/core"
	"github.com/SuperDev321/mediasoup/internal/domain"
)

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "createWebRtcTransport", "bad_payload")
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		ctl.sendError(c, "createWebRtcTransport", "room not found")
		return
	}

	params, err := room.CreateWebRtcTransport(ctx, peerID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("create transport")
		ctl.sendError(c, "createWebRtcTransport", err.Error())
		return
	}
	ctl.sendJSON(c, "createWebRtcTransport", params)
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID         string          `json:"room_id"`
		TransportID    string          `json:"transport_id"`
		DTLSParameters json.RawMessage `json:"dtlsParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "connectTransport", "bad_payload")
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		return
	}
	if err := room.ConnectPeerTransport(ctx, peerID, domain.TransportID(p.TransportID), p.DTLSParameters); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("connect transport")
		ctl.sendError(c, "connectTransport", err.Error())
		return
	}
	ctl.sendJSON(c, "connectTransport", "success")
}

// handleProduce creates the producer and broadcasts the new entry to the
// rest of the room, which is the gateway's responsibility layered on top of
// the room operation.
func (ctl *SignalWSController) handleProduce(ctx context.Context, peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID              string           `json:"room_id"`
		ProducerTransportID string           `json:"producerTransportId"`
		Kind                domain.MediaKind `json:"kind"`
		RtpParameters       json.RawMessage  `json:"rtpParameters"`
		Name                string           `json:"name"`
		Locked              bool             `json:"locked"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "produce", "bad_payload")
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		ctl.sendError(c, "produce", "not in a room "+p.RoomID)
		return
	}

	producerID, err := room.Produce(ctx, peerID, domain.TransportID(p.ProducerTransportID), p.RtpParameters, p.Kind, p.Locked)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("produce")
		ctl.sendError(c, "produce", err.Error())
		return
	}
	if m := ctl.App.Metrics(); m != nil {
		m.ProducerCreated()
	}
	log.Info().Str("module", "signal").Str("kind", string(p.Kind)).Str("peer", string(peerID)).Str("producer", string(producerID)).Msg("produce")

	ctl.sendJSON(c, "produce", map[string]any{"producer_id": producerID})
	room.BroadCast(peerID, "newProducers", []core.ProducerDescriptor{{
		ProducerID:       producerID,
		ProducerName:     p.Name,
		ProducerSocketID: peerID,
		RoomID:           domain.RoomID(p.RoomID),
		Locked:           p.Locked,
		Kind:             p.Kind,
	}})
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID              string          `json:"room_id"`
		ConsumerTransportID string          `json:"consumerTransportId"`
		ProducerID          string          `json:"producerId"`
		RtpCapabilities     json.RawMessage `json:"rtpCapabilities"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "consume", "bad_payload")
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		ctl.sendError(c, "consume", "room not found")
		return
	}

	params, err := room.Consume(ctx, peerID, domain.TransportID(p.ConsumerTransportID), domain.ProducerID(p.ProducerID), p.RtpCapabilities)
	if err != nil {
		if errors.Is(err, core.ErrCannotConsume) {
			ctl.sendJSON(c, "consume", map[string]any{"refused": true, "producerId": p.ProducerID})
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("consume")
		ctl.sendError(c, "consume", err.Error())
		return
	}
	if params == nil {
		ctl.sendError(c, "consume", "peer not found")
		return
	}
	if m := ctl.App.Metrics(); m != nil {
		m.ConsumerCreated()
	}
	log.Info().Str("module", "signal").Str("peer", string(peerID)).Str("producer", p.ProducerID).Str("consumer", string(params.ID)).Msg("consuming")
	ctl.sendJSON(c, "consume", params)
}

func (ctl *SignalWSController) handleProducerClosed(peerID domain.PeerID, data []byte) {
	var p struct {
		RoomID     string `json:"room_id"`
		ProducerID string `json:"producer_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		return
	}
	outcome := room.CloseProducer(peerID, domain.ProducerID(p.ProducerID))
	log.Info().Str("module", "signal").Str("peer", string(peerID)).Str("producer", p.ProducerID).Str("outcome", outcome.String()).Msg("producer closed")
}

func (ctl *SignalWSController) handleAllProducersClosed(peerID domain.PeerID, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if room, ok := ctl.App.Room(domain.RoomID(p.RoomID)); ok {
		room.CloseAllProducers(peerID)
	}
}

func (ctl *SignalWSController) handlePauseProducer(peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID     string `json:"room_id"`
		ProducerID string `json:"producer_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		return
	}
	if err := room.PauseProducer(peerID, domain.ProducerID(p.ProducerID)); err != nil {
		ctl.sendError(c, "pauseProducer", err.Error())
	}
}

func (ctl *SignalWSController) handleResumeProducer(peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID     string `json:"room_id"`
		ProducerID string `json:"producer_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		return
	}
	if err := room.ResumeProducer(peerID, domain.ProducerID(p.ProducerID)); err != nil {
		ctl.sendError(c, "resumeProducer", err.Error())
	}
}
