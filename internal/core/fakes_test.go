package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

// In-memory engine fakes. They record calls instead of moving media.

type fakeWorker struct {
	mu      sync.Mutex
	routers int
	failing bool
}

func (w *fakeWorker) CreateRouter(ctx context.Context) (Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failing {
		return nil, errors.New("worker unavailable")
	}
	w.routers++
	return &fakeRouter{
		caps:      json.RawMessage(`{"codecs":[]}`),
		producers: make(map[domain.ProducerID]*fakeProducer),
	}, nil
}

func (w *fakeWorker) routerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.routers
}

func (w *fakeWorker) OnDied(func()) {}
func (w *fakeWorker) Close()        {}

type fakeRouter struct {
	caps json.RawMessage
	// refuse makes CanConsume answer no for every producer.
	refuse bool

	mu         sync.Mutex
	transports int
	// producers is the room-wide directory cross-peer consumes resolve
	// against, mirroring the engine's per-router registration.
	producers map[domain.ProducerID]*fakeProducer
}

func (r *fakeRouter) RtpCapabilities() json.RawMessage { return r.caps }

func (r *fakeRouter) CanConsume(domain.ProducerID, json.RawMessage) bool {
	return !r.refuse
}

func (r *fakeRouter) CreateTransport(ctx context.Context, opts TransportOptions) (Transport, error) {
	r.mu.Lock()
	r.transports++
	id := domain.TransportID(fmt.Sprintf("t%d", r.transports))
	r.mu.Unlock()
	t := newFakeTransport(id)
	t.router = r
	return t, nil
}

func (r *fakeRouter) registerProducer(p *fakeProducer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *fakeRouter) unregisterProducer(id domain.ProducerID) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *fakeRouter) producer(id domain.ProducerID) (*fakeProducer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

type fakeTransport struct {
	id     domain.TransportID
	router *fakeRouter

	mu             sync.Mutex
	connected      bool
	closed         bool
	maxIncoming    int
	maxIncomingErr error
	produced       []*fakeProducer
	consumed       []*fakeConsumer
	onDTLSState    []func(string)
	onClose        []func()
	produceErr     error
	consumeErr     error
	consumerType   string
}

func newFakeTransport(id domain.TransportID) *fakeTransport {
	return &fakeTransport{id: id, consumerType: "simple"}
}

func (t *fakeTransport) ID() domain.TransportID          { return t.id }
func (t *fakeTransport) ICEParameters() json.RawMessage  { return json.RawMessage(`{}`) }
func (t *fakeTransport) ICECandidates() json.RawMessage  { return json.RawMessage(`[]`) }
func (t *fakeTransport) DTLSParameters() json.RawMessage { return json.RawMessage(`{}`) }

func (t *fakeTransport) Connect(ctx context.Context, dtls json.RawMessage) error {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) SetMaxIncomingBitrate(bitrate int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxIncomingErr != nil {
		return t.maxIncomingErr
	}
	t.maxIncoming = bitrate
	return nil
}

func (t *fakeTransport) Produce(ctx context.Context, opts ProduceOptions) (Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.produceErr != nil {
		return nil, t.produceErr
	}
	p := &fakeProducer{
		id:     domain.ProducerID(fmt.Sprintf("%s-p%d", t.id, len(t.produced)+1)),
		kind:   opts.Kind,
		router: t.router,
	}
	t.produced = append(t.produced, p)
	if t.router != nil {
		t.router.registerProducer(p)
	}
	return p, nil
}

func (t *fakeTransport) Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumeErr != nil {
		return nil, t.consumeErr
	}
	c := &fakeConsumer{
		id:   domain.ConsumerID(fmt.Sprintf("%s-c%d", t.id, len(t.consumed)+1)),
		kind: domain.MediaVideo,
		typ:  t.consumerType,
	}
	t.consumed = append(t.consumed, c)
	// Link to the source when it lives on this router so producer close
	// cascades across peers, like the engine does. Unknown ids stay
	// unlinked; tests drive those consumers by hand.
	if t.router != nil {
		if src, ok := t.router.producer(opts.ProducerID); ok {
			src.addConsumer(c)
		}
	}
	return c, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := append([]*fakeProducer(nil), t.produced...)
	consumers := append([]*fakeConsumer(nil), t.consumed...)
	onClose := make([]func(), len(t.onClose))
	copy(onClose, t.onClose)
	t.mu.Unlock()

	for _, c := range consumers {
		c.fireTransportClose()
	}
	for _, p := range producers {
		p.fireTransportClose()
	}
	for _, fn := range onClose {
		fn()
	}
	return nil
}

func (t *fakeTransport) OnDTLSStateChange(fn func(string)) {
	t.mu.Lock()
	t.onDTLSState = append(t.onDTLSState, fn)
	t.mu.Unlock()
}

func (t *fakeTransport) OnClose(fn func()) {
	t.mu.Lock()
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

func (t *fakeTransport) fireDTLSState(state string) {
	t.mu.Lock()
	handlers := make([]func(string), len(t.onDTLSState))
	copy(handlers, t.onDTLSState)
	t.mu.Unlock()
	for _, fn := range handlers {
		fn(state)
	}
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeProducer struct {
	id     domain.ProducerID
	kind   domain.MediaKind
	router *fakeRouter

	mu               sync.Mutex
	paused           bool
	closed           bool
	closeErr         error
	onTransportClose []func()
	consumers        []*fakeConsumer
}

func (p *fakeProducer) ID() domain.ProducerID  { return p.id }
func (p *fakeProducer) Kind() domain.MediaKind { return p.kind }

func (p *fakeProducer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakeProducer) Pause() error {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	return nil
}

func (p *fakeProducer) Resume() error {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	return nil
}

// Close cascades producer-close to every consumer fed by this stream,
// mirroring the engine's teardown order.
func (p *fakeProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := append([]*fakeConsumer(nil), p.consumers...)
	err := p.closeErr
	p.mu.Unlock()

	if p.router != nil {
		p.router.unregisterProducer(p.id)
	}
	for _, c := range consumers {
		c.fireProducerClose()
	}
	return err
}

func (p *fakeProducer) addConsumer(c *fakeConsumer) {
	p.mu.Lock()
	p.consumers = append(p.consumers, c)
	p.mu.Unlock()
}

func (p *fakeProducer) OnTransportClose(fn func()) {
	p.mu.Lock()
	p.onTransportClose = append(p.onTransportClose, fn)
	p.mu.Unlock()
}

func (p *fakeProducer) fireTransportClose() {
	p.mu.Lock()
	handlers := make([]func(), len(p.onTransportClose))
	copy(handlers, p.onTransportClose)
	p.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (p *fakeProducer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeConsumer struct {
	id   domain.ConsumerID
	kind domain.MediaKind
	typ  string

	mu               sync.Mutex
	closed           bool
	preferredSpatial int
	onTransportClose []func()
	onProducerClose  []func()
}

func (c *fakeConsumer) ID() domain.ConsumerID          { return c.id }
func (c *fakeConsumer) Kind() domain.MediaKind         { return c.kind }
func (c *fakeConsumer) RtpParameters() json.RawMessage { return json.RawMessage(`{}`) }
func (c *fakeConsumer) Type() string                   { return c.typ }
func (c *fakeConsumer) ProducerPaused() bool           { return false }

func (c *fakeConsumer) SetPreferredLayers(spatial, temporal int) error {
	c.mu.Lock()
	c.preferredSpatial = spatial
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) OnTransportClose(fn func()) {
	c.mu.Lock()
	c.onTransportClose = append(c.onTransportClose, fn)
	c.mu.Unlock()
}

func (c *fakeConsumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	c.onProducerClose = append(c.onProducerClose, fn)
	c.mu.Unlock()
}

func (c *fakeConsumer) fireTransportClose() {
	c.mu.Lock()
	handlers := make([]func(), len(c.onTransportClose))
	copy(handlers, c.onTransportClose)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (c *fakeConsumer) fireProducerClose() {
	c.mu.Lock()
	handlers := make([]func(), len(c.onProducerClose))
	copy(handlers, c.onProducerClose)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// fakeSignaler records every Send for assertions.
type sentEvent struct {
	peer    domain.PeerID
	event   string
	payload any
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

func (s *fakeSignaler) Send(peer domain.PeerID, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEvent{peer: peer, event: event, payload: payload})
	return nil
}

func (s *fakeSignaler) events() []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEvent(nil), s.sent...)
}

func (s *fakeSignaler) eventsFor(peer domain.PeerID) []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentEvent, 0)
	for _, e := range s.sent {
		if e.peer == peer {
			out = append(out, e)
		}
	}
	return out
}
