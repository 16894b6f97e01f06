package rtc

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

// consumer is one outbound stream, fed by its source producer's relay.
type consumer struct {
	id             domain.ConsumerID
	kind           domain.MediaKind
	typ            string
	producerPaused bool
	rtpParams      json.RawMessage

	src    *producer
	sender *webrtc.RTPSender
	out    *outTrack

	mu              sync.Mutex
	closed          bool
	onTransportCls  []func()
	onProducerClose []func()
}

func newConsumer(src *producer, sender *webrtc.RTPSender, track *webrtc.TrackLocalStaticRTP, rtpParams json.RawMessage, paused bool) *consumer {
	c := &consumer{
		id:             domain.ConsumerID(uuid.NewString()),
		kind:           src.kind,
		typ:            "simple",
		producerPaused: src.Paused(),
		rtpParams:      rtpParams,
		src:            src,
		sender:         sender,
		out:            newOutTrack(track),
	}
	if paused {
		c.out.markMuted()
	}
	return c
}

func (c *consumer) ID() domain.ConsumerID          { return c.id }
func (c *consumer) Kind() domain.MediaKind         { return c.kind }
func (c *consumer) RtpParameters() json.RawMessage { return c.rtpParams }
func (c *consumer) Type() string                   { return c.typ }
func (c *consumer) ProducerPaused() bool           { return c.producerPaused }

// SetPreferredLayers is accepted for contract compatibility; the relay
// forwards a single encoding so there is nothing to switch.
func (c *consumer) SetPreferredLayers(spatial, temporal int) error {
	log.Debug().Str("module", "rtc").Str("consumer", string(c.id)).Int("spatial", spatial).Int("temporal", temporal).Msg("preferred layers requested")
	return nil
}

// Close detaches from the relay and stops the sender. Idempotent.
func (c *consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.src.removeConsumer(c.id)
	err := c.sender.Stop()
	log.Info().Str("module", "rtc").Str("consumer", string(c.id)).Msg("consumer closed")
	return err
}

func (c *consumer) OnTransportClose(fn func()) {
	c.mu.Lock()
	c.onTransportCls = append(c.onTransportCls, fn)
	c.mu.Unlock()
}

func (c *consumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	c.onProducerClose = append(c.onProducerClose, fn)
	c.mu.Unlock()
}

func (c *consumer) fireTransportClose() {
	c.out.markDelete()
	c.mu.Lock()
	handlers := make([]func(), len(c.onTransportCls))
	copy(handlers, c.onTransportCls)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (c *consumer) fireProducerClose() {
	c.out.markDelete()
	c.mu.Lock()
	handlers := make([]func(), len(c.onProducerClose))
	copy(handlers, c.onProducerClose)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}
