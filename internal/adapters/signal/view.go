package signal

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

// viewTicket is one outstanding view request awaiting the target's answer.
type viewTicket struct {
	requester domain.PeerID
	target    domain.PeerID
	roomID    domain.RoomID
	// username is the requester's display name, recorded on the target's
	// block or allow set depending on the answer.
	username string
}

// handleStartView forwards a name-addressed notification to the target peer.
// Unknown rooms and names are dropped.
func (ctl *SignalWSController) handleStartView(data []byte) {
	ctl.forwardByName("start view", data)
}

func (ctl *SignalWSController) handleStopView(data []byte) {
	ctl.forwardByName("stop view", data)
}

func (ctl *SignalWSController) handleStopBroadcast(peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomID     string `json:"room_id"`
		Name       string `json:"name"`
		TargetName string `json:"targetName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		ctl.sendError(c, "stop broadcast", "no media room")
		return
	}
	target, ok := room.GetPeerByName(p.TargetName)
	if !ok {
		ctl.sendError(c, "stop broadcast", "no peer")
		return
	}
	room.Send(target.ID(), "stop broadcast", map[string]any{
		"room_id": p.RoomID,
		"name":    p.Name,
	})
}

func (ctl *SignalWSController) forwardByName(event string, data []byte) {
	var p struct {
		RoomID     string `json:"room_id"`
		Name       string `json:"name"`
		TargetName string `json:"targetName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomID))
	if !ok {
		return
	}
	target, ok := room.GetPeerByName(p.TargetName)
	if !ok {
		return
	}
	room.Send(target.ID(), event, map[string]any{
		"room_id": p.RoomID,
		"name":    p.Name,
	})
}

// handleViewRequest gates on the target's block set before anything is
// forwarded: a previously denied requester is refused without the target
// ever seeing the request. Otherwise the request is parked in the pending
// table under a fresh id and relayed to the target.
func (ctl *SignalWSController) handleViewRequest(peerID domain.PeerID, c *WsSignalConn, data []byte) {
	var p struct {
		RoomName   string `json:"roomName"`
		Username   string `json:"username"`
		TargetName string `json:"targetName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "view request", "bad_payload")
		return
	}
	room, ok := ctl.App.Room(domain.RoomID(p.RoomName))
	if !ok {
		ctl.sendError(c, "view request", "no media room")
		return
	}
	target, ok := room.GetPeerByName(p.TargetName)
	if !ok {
		ctl.sendError(c, "view request", "no peer")
		return
	}
	if target.CheckBlock(p.Username) {
		ctl.sendJSON(c, "view response", map[string]any{"result": false, "reason": "blocked"})
		return
	}

	requestID := uuid.NewString()
	ctl.mu.Lock()
	ctl.pending[requestID] = viewTicket{
		requester: peerID,
		target:    target.ID(),
		roomID:    room.ID(),
		username:  p.Username,
	}
	ctl.mu.Unlock()

	log.Info().Str("module", "signal").Str("request", requestID).Str("target", p.TargetName).Msg("view request")
	room.Send(target.ID(), "view request", map[string]any{
		"roomName":   p.RoomName,
		"username":   p.Username,
		"request_id": requestID,
	})
}

// handleViewResponse applies the target's verdict: deny blocks the requester
// for this target, accept allows. The requester is told either way. Only the
// ticket's target may answer.
func (ctl *SignalWSController) handleViewResponse(peerID domain.PeerID, data []byte) {
	var p struct {
		RequestID string `json:"request_id"`
		Result    bool   `json:"result"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	ctl.mu.Lock()
	ticket, ok := ctl.pending[p.RequestID]
	if ok && ticket.target == peerID {
		delete(ctl.pending, p.RequestID)
	}
	ctl.mu.Unlock()
	if !ok || ticket.target != peerID {
		log.Warn().Str("module", "signal").Str("request", p.RequestID).Msg("stale or foreign view response")
		return
	}

	room, found := ctl.App.Room(ticket.roomID)
	if found {
		if target, exists := room.Peer(ticket.target); exists {
			if p.Result {
				target.AddAllow(ticket.username)
			} else {
				target.AddBlock(ticket.username)
			}
		}
	}

	if err := ctl.Send(ticket.requester, "view response", map[string]any{
		"request_id": p.RequestID,
		"result":     p.Result,
	}); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("request", p.RequestID).Msg("answer requester")
	}
}
