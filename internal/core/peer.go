package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

type consumerEntry struct {
	consumer Consumer
	// producerID resolves "whose stream am I watching" during close
	// notifications; the producer may be gone by then.
	producerID domain.ProducerID
}

// Peer is one participant's connection-scoped state within a room.
// It exclusively owns its transports, producers and consumers, and remembers
// prior view-request outcomes in the blocked/allowed sets.
//
// Callers serialize mutating operations on the same transport/producer/
// consumer id; the mutex only makes individual map mutations atomic.
type Peer struct {
	id     domain.PeerID
	name   string
	roomID domain.RoomID

	mu         sync.RWMutex
	locked     bool
	transports map[domain.TransportID]Transport
	producers  map[domain.ProducerID]Producer
	consumers  map[domain.ConsumerID]consumerEntry
	blocked    map[string]struct{}
	allowed    map[string]struct{}
}

func NewPeer(id domain.PeerID, name string, roomID domain.RoomID) *Peer {
	return &Peer{
		id:         id,
		name:       name,
		roomID:     roomID,
		transports: make(map[domain.TransportID]Transport),
		producers:  make(map[domain.ProducerID]Producer),
		consumers:  make(map[domain.ConsumerID]consumerEntry),
		blocked:    make(map[string]struct{}),
		allowed:    make(map[string]struct{}),
	}
}

func (p *Peer) ID() domain.PeerID     { return p.id }
func (p *Peer) Name() string          { return p.name }
func (p *Peer) RoomID() domain.RoomID { return p.roomID }

// Locked reports the flag set by the peer's most recent produce call.
// It describes the peer, not an individual producer.
func (p *Peer) Locked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.locked
}

func (p *Peer) AddTransport(t Transport) {
	p.mu.Lock()
	p.transports[t.ID()] = t
	p.mu.Unlock()
	log.Info().Str("module", "core.peer").Str("peer", string(p.id)).Str("transport", string(t.ID())).Msg("transport added")
}

// ConnectTransport forwards DTLS parameters to the engine. An unknown
// transport id is a silent no-op.
func (p *Peer) ConnectTransport(ctx context.Context, transportID domain.TransportID, dtlsParameters json.RawMessage) error {
	p.mu.RLock()
	t, ok := p.transports[transportID]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	return t.Connect(ctx, dtlsParameters)
}

// CreateProducer starts sending media of the given kind over the transport.
// The locked flag is recorded on the whole peer as a side effect. A
// transport-close observer removes the producer from the registry when the
// engine tears the transport down.
func (p *Peer) CreateProducer(ctx context.Context, transportID domain.TransportID, rtpParameters json.RawMessage, kind domain.MediaKind, locked bool) (Producer, error) {
	p.mu.Lock()
	p.locked = locked
	t, ok := p.transports[transportID]
	p.mu.Unlock()
	if !ok {
		return nil, ErrTransportNotFound
	}

	producer, err := t.Produce(ctx, ProduceOptions{
		Kind:          kind,
		RtpParameters: rtpParameters,
		Locked:        locked,
	})
	if err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}

	p.mu.Lock()
	p.producers[producer.ID()] = producer
	p.mu.Unlock()

	producer.OnTransportClose(func() {
		log.Info().Str("module", "core.peer").Str("peer_name", p.name).Str("producer", string(producer.ID())).Msg("producer transport closed")
		if err := producer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "core.peer").Str("producer", string(producer.ID())).Msg("producer close after transport close")
		}
		p.mu.Lock()
		delete(p.producers, producer.ID())
		p.mu.Unlock()
	})

	return producer, nil
}

// CreateConsumer starts receiving producerID over the transport, non-paused.
// Simulcast consumers immediately request the highest layers. On engine
// refusal no consumer is registered and the error is returned for the
// gateway to relay as a declined request.
func (p *Peer) CreateConsumer(ctx context.Context, transportID domain.TransportID, producerID domain.ProducerID, rtpCapabilities json.RawMessage) (Consumer, *ConsumerParams, error) {
	p.mu.RLock()
	t, ok := p.transports[transportID]
	p.mu.RUnlock()
	if !ok {
		return nil, nil, ErrTransportNotFound
	}

	consumer, err := t.Consume(ctx, ConsumeOptions{
		ProducerID:      producerID,
		RtpCapabilities: rtpCapabilities,
		Paused:          false,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "core.peer").Str("transport", string(transportID)).Msg("consume failed")
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	if consumer.Type() == "simulcast" {
		if err := consumer.SetPreferredLayers(2, 2); err != nil {
			log.Warn().Err(err).Str("module", "core.peer").Str("consumer", string(consumer.ID())).Msg("set preferred layers")
		}
	}

	p.mu.Lock()
	p.consumers[consumer.ID()] = consumerEntry{consumer: consumer, producerID: producerID}
	p.mu.Unlock()

	params := &ConsumerParams{
		ProducerID:     producerID,
		ID:             consumer.ID(),
		Name:           p.name,
		Kind:           consumer.Kind(),
		RtpParameters:  consumer.RtpParameters(),
		Type:           consumer.Type(),
		ProducerPaused: consumer.ProducerPaused(),
		Refused:        false,
	}
	return consumer, params, nil
}

// CloseProducer is idempotent: unknown ids and engine close failures are
// swallowed, and the map entry is removed regardless.
func (p *Peer) CloseProducer(producerID domain.ProducerID) CloseOutcome {
	p.mu.Lock()
	producer, ok := p.producers[producerID]
	delete(p.producers, producerID)
	p.mu.Unlock()
	if !ok {
		return CloseAlreadyAbsent
	}
	if err := producer.Close(); err != nil {
		log.Warn().Err(err).Str("module", "core.peer").Str("producer", string(producerID)).Msg("close producer")
		return CloseErrorIgnored
	}
	return CloseClosed
}

// CloseAllProducers closes every owned producer best-effort and clears the map.
func (p *Peer) CloseAllProducers() CloseOutcome {
	p.mu.Lock()
	snapshot := make([]Producer, 0, len(p.producers))
	for _, producer := range p.producers {
		snapshot = append(snapshot, producer)
	}
	p.producers = make(map[domain.ProducerID]Producer)
	p.mu.Unlock()

	outcome := CloseClosed
	if len(snapshot) == 0 {
		outcome = CloseAlreadyAbsent
	}
	for _, producer := range snapshot {
		if err := producer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "core.peer").Str("producer", string(producer.ID())).Msg("close producer")
			outcome = CloseErrorIgnored
		}
	}
	return outcome
}

func (p *Peer) PauseProducer(producerID domain.ProducerID) error {
	p.mu.RLock()
	producer, ok := p.producers[producerID]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	return producer.Pause()
}

func (p *Peer) ResumeProducer(producerID domain.ProducerID) error {
	p.mu.RLock()
	producer, ok := p.producers[producerID]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	return producer.Resume()
}

// Close tears down every owned transport; the engine cascades that to the
// peer's producers and consumers. Both authorization sets are cleared. The
// producer/consumer maps are left as-is since the owning room discards the
// peer afterwards.
func (p *Peer) Close() CloseOutcome {
	p.mu.Lock()
	snapshot := make([]Transport, 0, len(p.transports))
	for _, t := range p.transports {
		snapshot = append(snapshot, t)
	}
	p.blocked = make(map[string]struct{})
	p.allowed = make(map[string]struct{})
	p.mu.Unlock()

	outcome := CloseClosed
	if len(snapshot) == 0 {
		outcome = CloseAlreadyAbsent
	}
	for _, t := range snapshot {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "core.peer").Str("transport", string(t.ID())).Msg("close transport")
			outcome = CloseErrorIgnored
		}
	}
	return outcome
}

func (p *Peer) GetProducerIDOfConsumer(consumerID domain.ConsumerID) (domain.ProducerID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.consumers[consumerID]
	if !ok {
		return "", false
	}
	return entry.producerID, true
}

// RemoveConsumer drops the bookkeeping entry unconditionally. It does not
// close the engine-side consumer; that is the engine's cascade to perform.
func (p *Peer) RemoveConsumer(consumerID domain.ConsumerID) {
	p.mu.Lock()
	delete(p.consumers, consumerID)
	p.mu.Unlock()
}

func (p *Peer) HasConsumer(consumerID domain.ConsumerID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.consumers[consumerID]
	return ok
}

// ProducersSnapshot returns the currently registered producers. Point-in-time,
// may be stale by the time the caller acts on it.
func (p *Peer) ProducersSnapshot() []Producer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Producer, 0, len(p.producers))
	for _, producer := range p.producers {
		out = append(out, producer)
	}
	return out
}

func (p *Peer) AddBlock(name string) {
	p.mu.Lock()
	p.blocked[name] = struct{}{}
	p.mu.Unlock()
}

func (p *Peer) AddAllow(name string) {
	p.mu.Lock()
	p.allowed[name] = struct{}{}
	p.mu.Unlock()
}

func (p *Peer) CheckBlock(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.blocked[name]
	return ok
}

func (p *Peer) CheckAllow(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.allowed[name]
	return ok
}
