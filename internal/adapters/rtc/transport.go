package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/core"
	"github.com/SuperDev321/mediasoup/internal/domain"
)

var (
	ErrTransportClosed  = errors.New("transport closed")
	ErrProducerNotFound = errors.New("producer not found on router")
	ErrMissingSSRC      = errors.New("rtp parameters carry no encodings/ssrc")
)

// transport is a negotiated network path: one ICE gatherer plus ICE and DTLS
// transports. It carries the producers and consumers created on it and
// cascades its own teardown to them.
type transport struct {
	id     domain.TransportID
	router *router

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	iceParams     json.RawMessage
	iceCandidates json.RawMessage
	dtlsParams    json.RawMessage

	mu                 sync.Mutex
	closed             bool
	maxIncomingBitrate int
	onDTLSState        []func(string)
	onClose            []func()
	producers          []*producer
	consumers          []*consumer
}

// newTransport gathers candidates synchronously; engine timeouts are modeled
// by the caller's context.
func newTransport(ctx context.Context, r *router, _ core.TransportOptions) (*transport, error) {
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("new gatherer: %w", err)
	}
	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, fmt.Errorf("new dtls transport: %w", err)
	}

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	localICE, err := gatherer.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		return nil, fmt.Errorf("local candidates: %w", err)
	}
	localDTLS, err := dtls.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	iceJSON, err := marshalICEParameters(localICE)
	if err != nil {
		return nil, err
	}
	candJSON, err := marshalICECandidates(candidates)
	if err != nil {
		return nil, err
	}
	dtlsJSON, err := marshalDTLSParameters(localDTLS)
	if err != nil {
		return nil, err
	}

	t := &transport{
		id:            domain.TransportID(uuid.NewString()),
		router:        r,
		gatherer:      gatherer,
		ice:           ice,
		dtls:          dtls,
		iceParams:     iceJSON,
		iceCandidates: candJSON,
		dtlsParams:    dtlsJSON,
	}

	dtls.OnStateChange(func(state webrtc.DTLSTransportState) {
		t.fireDTLSState(state.String())
	})
	ice.OnConnectionStateChange(func(state webrtc.ICETransportState) {
		log.Debug().Str("module", "rtc").Str("transport", string(t.id)).Str("ice_state", state.String()).Msg("ice state")
	})

	return t, nil
}

func (t *transport) ID() domain.TransportID          { return t.id }
func (t *transport) ICEParameters() json.RawMessage  { return t.iceParams }
func (t *transport) ICECandidates() json.RawMessage  { return t.iceCandidates }
func (t *transport) DTLSParameters() json.RawMessage { return t.dtlsParams }

// Connect finalizes the secure path: start ICE in the controlled role with
// the client's parameters, then start DTLS against its fingerprints.
func (t *transport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	var remote dtlsParametersJSON
	if err := json.Unmarshal(dtlsParameters, &remote); err != nil {
		return fmt.Errorf("bad dtls parameters: %w", err)
	}

	if remote.ICEParameters != nil {
		role := webrtc.ICERoleControlled
		err := t.ice.Start(t.gatherer, webrtc.ICEParameters{
			UsernameFragment: remote.ICEParameters.UsernameFragment,
			Password:         remote.ICEParameters.Password,
			ICELite:          remote.ICEParameters.ICELite,
		}, &role)
		if err != nil {
			return fmt.Errorf("ice start: %w", err)
		}
	}

	fps := make([]webrtc.DTLSFingerprint, 0, len(remote.Fingerprints))
	for _, fp := range remote.Fingerprints {
		fps = append(fps, webrtc.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	if err := t.dtls.Start(webrtc.DTLSParameters{
		Role:         dtlsRoleFromString(remote.Role),
		Fingerprints: fps,
	}); err != nil {
		return fmt.Errorf("dtls start: %w", err)
	}
	log.Info().Str("module", "rtc").Str("transport", string(t.id)).Msg("transport connected")
	return nil
}

// SetMaxIncomingBitrate records the cap as a receive-side hint.
func (t *transport) SetMaxIncomingBitrate(bitrate int) error {
	if bitrate < 0 {
		return fmt.Errorf("negative bitrate %d", bitrate)
	}
	t.mu.Lock()
	t.maxIncomingBitrate = bitrate
	t.mu.Unlock()
	return nil
}

// Produce starts receiving the client's stream and registers it on the
// router so other peers can consume it.
func (t *transport) Produce(ctx context.Context, opts core.ProduceOptions) (core.Producer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	var params producerRtpParameters
	if err := json.Unmarshal(opts.RtpParameters, &params); err != nil {
		return nil, fmt.Errorf("bad rtp parameters: %w", err)
	}
	if len(params.Encodings) == 0 || params.Encodings[0].SSRC == 0 {
		return nil, ErrMissingSSRC
	}

	codecType := webrtc.RTPCodecTypeVideo
	if opts.Kind == domain.MediaAudio {
		codecType = webrtc.RTPCodecTypeAudio
	}
	receiver, err := t.router.api.NewRTPReceiver(codecType, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new receiver: %w", err)
	}

	coding := webrtc.RTPCodingParameters{SSRC: webrtc.SSRC(params.Encodings[0].SSRC)}
	if len(params.Codecs) > 0 {
		coding.PayloadType = webrtc.PayloadType(params.Codecs[0].PayloadType)
	}
	if err := receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{RTPCodingParameters: coding}},
	}); err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}

	p := newProducer(t.router, receiver, opts.Kind, opts.Locked)

	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	t.router.registerProducer(p)

	log.Info().Str("module", "rtc").Str("transport", string(t.id)).Str("producer", string(p.id)).Str("kind", string(opts.Kind)).Msg("producer created")
	return p, nil
}

// Consume attaches an outgoing track fed by the producer's relay.
func (t *transport) Consume(ctx context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	src, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, ErrProducerNotFound
	}

	codec := t.router.codecFor(src.kind)
	track, err := webrtc.NewTrackLocalStaticRTP(codec.RTPCodecCapability, uuid.NewString(), "mediasoup")
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	sender, err := t.router.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new sender: %w", err)
	}
	if err := sender.Send(sender.GetParameters()); err != nil {
		return nil, fmt.Errorf("sender send: %w", err)
	}

	rtpParams, err := json.Marshal(sender.GetParameters())
	if err != nil {
		return nil, err
	}

	c := newConsumer(src, sender, track, rtpParams, opts.Paused)

	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	src.addConsumer(c)

	log.Info().Str("module", "rtc").Str("transport", string(t.id)).Str("consumer", string(c.id)).Str("producer", string(opts.ProducerID)).Msg("consumer created")
	return c, nil
}

// Close stops ICE/DTLS and cascades transport-close to every producer and
// consumer created on this path. Idempotent.
func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := t.producers
	consumers := t.consumers
	onClose := t.onClose
	t.mu.Unlock()

	for _, c := range consumers {
		c.fireTransportClose()
	}
	for _, p := range producers {
		p.fireTransportClose()
	}

	var errs []error
	if err := t.dtls.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := t.ice.Stop(); err != nil {
		errs = append(errs, err)
	}
	for _, fn := range onClose {
		fn()
	}
	log.Info().Str("module", "rtc").Str("transport", string(t.id)).Msg("transport closed")
	return errors.Join(errs...)
}

func (t *transport) OnDTLSStateChange(fn func(state string)) {
	t.mu.Lock()
	t.onDTLSState = append(t.onDTLSState, fn)
	t.mu.Unlock()
}

func (t *transport) OnClose(fn func()) {
	t.mu.Lock()
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

func (t *transport) fireDTLSState(state string) {
	t.mu.Lock()
	handlers := make([]func(string), len(t.onDTLSState))
	copy(handlers, t.onDTLSState)
	t.mu.Unlock()
	for _, fn := range handlers {
		fn(state)
	}
}
