package core

import (
	"encoding/json"
	"errors"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

var (
	ErrTransportNotFound = errors.New("transport not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrCannotConsume     = errors.New("cannot consume producer with given capabilities")
)

// CloseOutcome classifies best-effort teardown results so callers and tests
// can tell "closed" from "was never there" without any of them raising.
type CloseOutcome int

const (
	CloseClosed CloseOutcome = iota
	CloseAlreadyAbsent
	CloseErrorIgnored
)

func (o CloseOutcome) String() string {
	switch o {
	case CloseClosed:
		return "closed"
	case CloseAlreadyAbsent:
		return "already_absent"
	case CloseErrorIgnored:
		return "error_ignored"
	}
	return "unknown"
}

// ProducerDescriptor is one row of the room's "who is publishing" directory.
// Field names match the wire format the clients expect.
type ProducerDescriptor struct {
	ProducerID       domain.ProducerID `json:"producer_id"`
	ProducerName     string            `json:"producer_name"`
	ProducerSocketID domain.PeerID     `json:"producer_socket_id"`
	RoomID           domain.RoomID     `json:"room_id"`
	Locked           bool              `json:"locked"`
	Kind             domain.MediaKind  `json:"kind"`
}

// TransportParams is what a client needs to establish the transport.
type TransportParams struct {
	ID             domain.TransportID `json:"id"`
	ICEParameters  json.RawMessage    `json:"iceParameters"`
	ICECandidates  json.RawMessage    `json:"iceCandidates"`
	DTLSParameters json.RawMessage    `json:"dtlsParameters"`
}

// ConsumerParams is the bundle returned to a subscribing client.
type ConsumerParams struct {
	ProducerID     domain.ProducerID `json:"producerId"`
	ID             domain.ConsumerID `json:"id"`
	Name           string            `json:"name"`
	Kind           domain.MediaKind  `json:"kind"`
	RtpParameters  json.RawMessage   `json:"rtpParameters"`
	Type           string            `json:"type"`
	ProducerPaused bool              `json:"producerPaused"`
	Refused        bool              `json:"refused"`
}

// PeerInfo is a read-only view for APIs (no engine handles).
type PeerInfo struct {
	ID   domain.PeerID `json:"id"`
	Name string        `json:"name"`
}

type RoomInfo struct {
	ID    domain.RoomID `json:"id"`
	Peers []PeerInfo    `json:"peers"`
}
