package core

import (
	"context"
	"encoding/json"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

// The media engine moves the actual bits: codec negotiation, ICE/DTLS/SRTP,
// congestion control. Core only holds handles and reacts to its events.
// RTP parameter and capability blobs stay opaque here; only the engine
// adapter interprets them.

// Worker is one media engine process slot. The pool is fixed at startup.
type Worker interface {
	// CreateRouter makes a per-room routing context sharing one codec table.
	CreateRouter(ctx context.Context) (Router, error)
	// OnDied registers the fatal-death observer. Worker death is the only
	// unrecoverable condition in the system.
	OnDied(func())
	Close()
}

type Router interface {
	RtpCapabilities() json.RawMessage
	// CanConsume reports whether a subscriber with the given capabilities
	// can receive the producer's media.
	CanConsume(producerID domain.ProducerID, rtpCapabilities json.RawMessage) bool
	CreateTransport(ctx context.Context, opts TransportOptions) (Transport, error)
}

// Transport is a negotiated network path between one peer and the engine,
// the container for that peer's producers and consumers. Closing a transport
// cascades to everything it carries.
type Transport interface {
	ID() domain.TransportID
	ICEParameters() json.RawMessage
	ICECandidates() json.RawMessage
	DTLSParameters() json.RawMessage

	Connect(ctx context.Context, dtlsParameters json.RawMessage) error
	// SetMaxIncomingBitrate is best-effort; a failure leaves the transport
	// usable but uncapped.
	SetMaxIncomingBitrate(bitrate int) error
	Produce(ctx context.Context, opts ProduceOptions) (Producer, error)
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)
	Close() error

	// OnDTLSStateChange fires with states such as "connected" and "closed".
	OnDTLSStateChange(func(state string))
	OnClose(func())
}

type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	Paused() bool
	Pause() error
	Resume() error
	Close() error
	OnTransportClose(func())
}

type Consumer interface {
	ID() domain.ConsumerID
	Kind() domain.MediaKind
	RtpParameters() json.RawMessage
	// Type is "simple", "simulcast" or "svc".
	Type() string
	ProducerPaused() bool
	SetPreferredLayers(spatial, temporal int) error
	Close() error
	OnTransportClose(func())
	OnProducerClose(func())
}

type TransportOptions struct {
	// InitialOutgoingBitrate is a hint for the engine's congestion controller.
	InitialOutgoingBitrate int
}

type ProduceOptions struct {
	Kind          domain.MediaKind
	RtpParameters json.RawMessage
	// Locked travels as opaque application metadata alongside the stream.
	Locked bool
}

type ConsumeOptions struct {
	ProducerID      domain.ProducerID
	RtpCapabilities json.RawMessage
	Paused          bool
}
