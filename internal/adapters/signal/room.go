package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/core"
	"github.com/SuperDev321/mediasoup/internal/domain"
)

// handleCreateRoom is the strict creation path: an existing id is reported
// back as a declinable outcome, not an error.
func (ctl *SignalWSController) handleCreateRoom(ctx context.Context, peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "createMediaRoom", "bad_payload")
		return
	}
	if ctl.Cfg.Token != "" && p.Token != ctl.Cfg.Token {
		return
	}

	_, created, err := ctl.App.CreateRoom(ctx, domain.RoomID(p.RoomID))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("create room")
		ctl.sendError(c, "createMediaRoom", "create failed")
		return
	}
	if !created {
		ctl.sendJSON(c, "createMediaRoom", map[string]any{"room_id": p.RoomID, "result": "already exists"})
		return
	}
	log.Info().Str("module", "signal").Str("room", p.RoomID).Msg("room created")
	ctl.sendJSON(c, "createMediaRoom", map[string]any{"room_id": p.RoomID, "result": "created"})
}

// handleJoin is the lenient path: the room is created transparently when
// absent.
func (ctl *SignalWSController) handleJoin(ctx context.Context, peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
		Name   string `json:"name"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "joinMedia", "bad_payload")
		return
	}
	if ctl.Cfg.Token != "" && p.Token != ctl.Cfg.Token {
		ctl.sendJSON(c, "joinMedia", map[string]any{"joined": false})
		return
	}
	if err := domain.ValidPeerName(p.Name); err != nil {
		ctl.sendError(c, "joinMedia", err.Error())
		return
	}
	if !ctl.limiter.Allow(peerID) {
		ctl.sendError(c, "joinMedia", "too many join attempts")
		return
	}

	roomID := domain.RoomID(p.RoomID)
	room, err := ctl.App.GetOrCreateRoom(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("join: room")
		ctl.sendError(c, "joinMedia", "room unavailable")
		return
	}

	rejoined := room.AddPeer(core.NewPeer(peerID, p.Name, roomID))
	c.markJoined(roomID)
	// A rejoin replaces the membership in place; counting it again would
	// drift the gauge since disconnect decrements once per room.
	if m := ctl.App.Metrics(); m != nil && !rejoined {
		m.PeerJoined()
	}
	log.Info().Str("module", "signal").Str("peer", string(peerID)).Str("name", p.Name).Str("room", p.RoomID).Msg("joined")
	ctl.sendJSON(c, "joinMedia", map[string]any{"joined": true, "room_id": p.RoomID})
}

// handleGetProducers hands the current publishing directory to the caller.
func (ctl *SignalWSController) handleGetProducers(peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		return
	}
	ctl.sendJSON(c, "newProducers", room.GetProducerListForPeer())
}

func (ctl *SignalWSController) handleRouterCapabilities(c *WsSignalConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "getRouterRtpCapabilities", "bad_payload")
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		ctl.sendError(c, "getRouterRtpCapabilities", "room not found")
		return
	}
	ctl.sendJSON(c, "getRouterRtpCapabilities", room.GetRtpCapabilities())
}

func (ctl *SignalWSController) handleRoomInfo(c *WsSignalConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "getMyRoomInfo", "bad_payload")
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		ctl.sendError(c, "getMyRoomInfo", "room not found")
		return
	}
	ctl.sendJSON(c, "getMyRoomInfo", room.Info())
}

func (ctl *SignalWSController) handleExitRoom(peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "exitRoom", "bad_payload")
		return
	}
	roomID := domain.RoomID(p.RoomID)
	room, ok := ctl.App.Room(roomID)
	if !ok {
		ctl.sendError(c, "exitRoom", "not currently in a room")
		return
	}

	room.RemovePeer(peerID)
	c.markLeft(roomID)
	if m := ctl.App.Metrics(); m != nil {
		m.PeerLeft()
	}
	ctl.App.RemoveRoomIfEmpty(roomID)
	log.Info().Str("module", "signal").Str("peer", string(peerID)).Str("room", p.RoomID).Msg("exited room")
	ctl.sendJSON(c, "exitRoom", "successfully exited room")
}

// handleExit leaves every joined room at once; the socket stays open.
func (ctl *SignalWSController) handleExit(peerID domain.PeerID, c *WsSignalConn) {
	for _, roomID := range c.joinedRooms() {
		c.markLeft(roomID)
		room, ok := ctl.App.Room(roomID)
		if !ok {
			continue
		}
		room.RemovePeer(peerID)
		if m := ctl.App.Metrics(); m != nil {
			m.PeerLeft()
		}
		ctl.App.RemoveRoomIfEmpty(roomID)
		log.Info().Str("module", "signal").Str("peer", string(peerID)).Str("room", string(roomID)).Msg("exited room")
	}
	ctl.sendJSON(c, "exit", "successfully exited room")
}
