package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

// producer is one inbound stream. A relay goroutine reads its RTP and fans
// it out to every consumer's outgoing track.
type producer struct {
	id     domain.ProducerID
	kind   domain.MediaKind
	locked bool

	router   *router
	receiver *webrtc.RTPReceiver
	relay    *relay
	paused   atomic.Bool

	mu               sync.Mutex
	closed           bool
	onTransportClose []func()
	consumers        map[domain.ConsumerID]*consumer
}

func newProducer(r *router, receiver *webrtc.RTPReceiver, kind domain.MediaKind, locked bool) *producer {
	p := &producer{
		id:        domain.ProducerID(uuid.NewString()),
		kind:      kind,
		locked:    locked,
		router:    r,
		receiver:  receiver,
		consumers: make(map[domain.ConsumerID]*consumer),
	}
	p.relay = newRelay(receiver.Track(), &p.paused)
	go p.relay.loop(string(p.id))
	return p
}

func (p *producer) ID() domain.ProducerID  { return p.id }
func (p *producer) Kind() domain.MediaKind { return p.kind }
func (p *producer) Paused() bool           { return p.paused.Load() }

func (p *producer) Pause() error {
	p.paused.Store(true)
	return nil
}

func (p *producer) Resume() error {
	p.paused.Store(false)
	return nil
}

// Close stops the stream and cascades producer-close to every consumer
// reading from it. Idempotent.
func (p *producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := make([]*consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.mu.Unlock()

	p.router.unregisterProducer(p.id)
	p.relay.stop()
	err := p.receiver.Stop()

	for _, c := range consumers {
		c.fireProducerClose()
	}
	log.Info().Str("module", "rtc").Str("producer", string(p.id)).Msg("producer closed")
	return err
}

func (p *producer) OnTransportClose(fn func()) {
	p.mu.Lock()
	p.onTransportClose = append(p.onTransportClose, fn)
	p.mu.Unlock()
}

func (p *producer) fireTransportClose() {
	p.mu.Lock()
	handlers := make([]func(), len(p.onTransportClose))
	copy(handlers, p.onTransportClose)
	p.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (p *producer) addConsumer(c *consumer) {
	p.mu.Lock()
	p.consumers[c.id] = c
	p.mu.Unlock()
	p.relay.addOutTrack(c.id, c.out)
}

func (p *producer) removeConsumer(id domain.ConsumerID) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
	p.relay.removeOutTrack(id)
}
