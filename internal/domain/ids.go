// Package domain contains identifiers and meta-data without logic.
package domain

import "errors"

const MaxPeerNameLen = 36

var (
	ErrPeerNameEmpty   = errors.New("peer name empty")
	ErrPeerNameTooLong = errors.New("peer name too long")
)

type (
	// RoomID is assigned by the creator (client or gateway), never generated here.
	RoomID string

	// PeerID is the connection identifier, unique within a room and stable
	// for the peer's lifetime.
	PeerID string

	// TransportID, ProducerID and ConsumerID originate from the media engine
	// and are globally unique.
	TransportID string
	ProducerID  string
	ConsumerID  string
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ValidPeerName enforces the same bound the signaling layer applies to
// display names before they enter a room.
func ValidPeerName(name string) error {
	if len(name) == 0 {
		return ErrPeerNameEmpty
	}
	if len(name) > MaxPeerNameLen {
		return ErrPeerNameTooLong
	}
	return nil
}
