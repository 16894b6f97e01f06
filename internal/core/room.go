package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

// RoomOptions carries the transport tuning the registry reads from config.
type RoomOptions struct {
	InitialOutgoingBitrate int
	// MaxIncomingBitrate of zero means no cap is attempted.
	MaxIncomingBitrate int
}

// Room is a named collection of peers sharing one engine router. It proxies
// transport/produce/consume requests to the owning peer, builds the producer
// directory for joiners, and fans out notifications through the signaler.
//
// Join order is tracked explicitly: name lookups resolve to the most
// recently joined peer with that name.
type Room struct {
	id     domain.RoomID
	router Router
	sig    Signaler
	opts   RoomOptions

	mu    sync.RWMutex
	peers map[domain.PeerID]*Peer
	order []domain.PeerID
}

// NewRoom creates the room's router on the given worker before returning.
// All transports in the room share that router's codec capabilities.
func NewRoom(ctx context.Context, id domain.RoomID, worker Worker, sig Signaler, opts RoomOptions) (*Room, error) {
	router, err := worker.CreateRouter(ctx)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	log.Info().Str("module", "core.room").Str("room", string(id)).Msg("room created")
	return &Room{
		id:     id,
		router: router,
		sig:    sig,
		opts:   opts,
		peers:  make(map[domain.PeerID]*Peer),
	}, nil
}

func (r *Room) ID() domain.RoomID { return r.id }

// AddPeer inserts the peer, silently overwriting a reused id. The reused id
// moves to the back of the join order. Reports whether the id was already
// present so callers can tell a rejoin from a fresh join.
func (r *Room) AddPeer(peer *Peer) bool {
	r.mu.Lock()
	_, rejoined := r.peers[peer.ID()]
	if rejoined {
		for i, id := range r.order {
			if id == peer.ID() {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.peers[peer.ID()] = peer
	r.order = append(r.order, peer.ID())
	r.mu.Unlock()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("peer", string(peer.ID())).Str("name", peer.Name()).Bool("rejoined", rejoined).Msg("peer added")
	return rejoined
}

func (r *Room) Peer(id domain.PeerID) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.peers[id]
	return peer, ok
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// GetProducerListForPeer builds the "who is publishing" directory across all
// peers: one descriptor per live producer. The snapshot is point-in-time and
// may be stale by the time the caller acts on it. Each descriptor's Locked
// field reflects the producing peer's current flag, not the value at produce
// time.
func (r *Room) GetProducerListForPeer() []ProducerDescriptor {
	r.mu.RLock()
	peers := make([]*Peer, 0, len(r.order))
	for _, id := range r.order {
		peers = append(peers, r.peers[id])
	}
	r.mu.RUnlock()

	list := make([]ProducerDescriptor, 0)
	for _, peer := range peers {
		locked := peer.Locked()
		for _, producer := range peer.ProducersSnapshot() {
			list = append(list, ProducerDescriptor{
				ProducerID:       producer.ID(),
				ProducerName:     peer.Name(),
				ProducerSocketID: peer.ID(),
				RoomID:           r.id,
				Locked:           locked,
				Kind:             producer.Kind(),
			})
		}
	}
	return list
}

func (r *Room) GetRtpCapabilities() json.RawMessage {
	return r.router.RtpCapabilities()
}

// CreateWebRtcTransport asks the engine for a transport on the room's router,
// applies the configured bitrate hints (the incoming cap is best-effort) and
// registers it on the owning peer.
func (r *Room) CreateWebRtcTransport(ctx context.Context, peerID domain.PeerID) (*TransportParams, error) {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrPeerNotFound
	}

	transport, err := r.router.CreateTransport(ctx, TransportOptions{
		InitialOutgoingBitrate: r.opts.InitialOutgoingBitrate,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	if r.opts.MaxIncomingBitrate > 0 {
		if err := transport.SetMaxIncomingBitrate(r.opts.MaxIncomingBitrate); err != nil {
			log.Warn().Err(err).Str("module", "core.room").Str("transport", string(transport.ID())).Msg("set max incoming bitrate")
		}
	}

	transport.OnDTLSStateChange(func(state string) {
		if state == "closed" {
			log.Info().Str("module", "core.room").Str("peer_name", peer.Name()).Str("transport", string(transport.ID())).Msg("transport dtls closed")
			if err := transport.Close(); err != nil {
				log.Warn().Err(err).Str("module", "core.room").Str("transport", string(transport.ID())).Msg("close transport")
			}
		}
	})
	transport.OnClose(func() {
		log.Info().Str("module", "core.room").Str("peer_name", peer.Name()).Str("transport", string(transport.ID())).Msg("transport closed")
	})

	peer.AddTransport(transport)

	return &TransportParams{
		ID:             transport.ID(),
		ICEParameters:  transport.ICEParameters(),
		ICECandidates:  transport.ICECandidates(),
		DTLSParameters: transport.DTLSParameters(),
	}, nil
}

// ConnectPeerTransport is a no-op if the peer is unknown.
func (r *Room) ConnectPeerTransport(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, dtlsParameters json.RawMessage) error {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return peer.ConnectTransport(ctx, transportID, dtlsParameters)
}

// Produce delegates to the peer and returns the new producer's id.
// Broadcasting the new-producer event is the gateway's job, layered on top.
func (r *Room) Produce(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, rtpParameters json.RawMessage, kind domain.MediaKind, locked bool) (domain.ProducerID, error) {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return "", ErrPeerNotFound
	}
	producer, err := peer.CreateProducer(ctx, transportID, rtpParameters, kind, locked)
	if err != nil {
		return "", err
	}
	return producer.ID(), nil
}

// Consume gates on the router's capability check first: a mismatch is a
// declined operation, nothing gets created. An unknown peer yields an absent
// result. On success two observers are installed: transport-close tears the
// consumer down through CloseConsumer, producer-close removes it from the
// peer and best-effort notifies the peer's signaling channel.
func (r *Room) Consume(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, producerID domain.ProducerID, rtpCapabilities json.RawMessage) (*ConsumerParams, error) {
	if !r.router.CanConsume(producerID, rtpCapabilities) {
		log.Error().Str("module", "core.room").Str("room", string(r.id)).Str("producer", string(producerID)).Msg("cannot consume")
		return nil, ErrCannotConsume
	}

	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	consumer, params, err := peer.CreateConsumer(ctx, transportID, producerID, rtpCapabilities)
	if err != nil {
		return nil, err
	}

	consumer.OnTransportClose(func() {
		log.Info().Str("module", "core.room").Str("peer_name", peer.Name()).Str("consumer", string(consumer.ID())).Msg("consumer transport closed")
		r.CloseConsumer(peerID, consumer.ID())
	})
	consumer.OnProducerClose(func() {
		log.Info().Str("module", "core.room").Str("peer_name", peer.Name()).Str("consumer", string(consumer.ID())).Msg("consumer closed on producer close")
		peer.RemoveConsumer(consumer.ID())
		if err := r.sig.Send(peerID, "consumerClosed", map[string]any{
			"consumer_id": consumer.ID(),
			"room_id":     r.id,
		}); err != nil {
			log.Warn().Err(err).Str("module", "core.room").Str("peer", string(peerID)).Msg("notify consumer closed")
		}
	})

	return params, nil
}

// RemovePeer closes the peer (cascading transport teardown) and drops it from
// the map. Safe to call after the peer already closed some of its resources.
func (r *Room) RemovePeer(peerID domain.PeerID) {
	r.mu.Lock()
	peer, ok := r.peers[peerID]
	delete(r.peers, peerID)
	for i, id := range r.order {
		if id == peerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	peer.Close()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("peer", string(peerID)).Msg("peer removed")
}

func (r *Room) CloseProducer(peerID domain.PeerID, producerID domain.ProducerID) CloseOutcome {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return CloseAlreadyAbsent
	}
	return peer.CloseProducer(producerID)
}

func (r *Room) CloseAllProducers(peerID domain.PeerID) CloseOutcome {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return CloseAlreadyAbsent
	}
	return peer.CloseAllProducers()
}

func (r *Room) PauseProducer(peerID domain.PeerID, producerID domain.ProducerID) error {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return peer.PauseProducer(producerID)
}

func (r *Room) ResumeProducer(peerID domain.PeerID, producerID domain.ProducerID) error {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return peer.ResumeProducer(producerID)
}

// CloseConsumer removes the consumer from the peer and, when the source
// producer is video, tells the producing peer that this viewer stopped.
// The removal happens regardless of notification outcome.
func (r *Room) CloseConsumer(peerID domain.PeerID, consumerID domain.ConsumerID) {
	r.mu.RLock()
	peer, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if producerID, found := peer.GetProducerIDOfConsumer(consumerID); found {
		for _, desc := range r.GetProducerListForPeer() {
			if desc.ProducerID != producerID {
				continue
			}
			if desc.Kind == domain.MediaVideo {
				if err := r.sig.Send(desc.ProducerSocketID, "stop view", map[string]any{
					"name":        peer.Name(),
					"producer_id": desc.ProducerID,
					"room_id":     desc.RoomID,
				}); err != nil {
					log.Warn().Err(err).Str("module", "core.room").Str("peer", string(desc.ProducerSocketID)).Msg("notify stop view")
				}
			}
			break
		}
	}
	peer.RemoveConsumer(consumerID)
}

// BroadCast sends the event to every peer except excludePeerID.
func (r *Room) BroadCast(excludePeerID domain.PeerID, event string, payload any) {
	r.mu.RLock()
	targets := make([]domain.PeerID, 0, len(r.order))
	for _, id := range r.order {
		if id != excludePeerID {
			targets = append(targets, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range targets {
		r.Send(id, event, payload)
	}
}

func (r *Room) Send(peerID domain.PeerID, event string, payload any) {
	if err := r.sig.Send(peerID, event, payload); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("peer", string(peerID)).Str("event", event).Msg("send failed")
	}
}

// GetPeerByName scans peers in join order and returns the LAST match: name
// collisions resolve to the most recently joined peer.
func (r *Room) GetPeerByName(name string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Peer
	for _, id := range r.order {
		if peer := r.peers[id]; peer.Name() == name {
			found = peer
		}
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

func (r *Room) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := RoomInfo{ID: r.id, Peers: make([]PeerInfo, 0, len(r.order))}
	for _, id := range r.order {
		peer := r.peers[id]
		info.Peers = append(info.Peers, PeerInfo{ID: peer.ID(), Name: peer.Name()})
	}
	return info
}
