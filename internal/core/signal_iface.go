package core

import "github.com/SuperDev321/mediasoup/internal/domain"

// Signaler abstracts the signaling gateway's per-peer send primitive.
// Owned by the adapter; the adapter must close the underlying connections.
type Signaler interface {
	Send(peer domain.PeerID, event string, payload any) error
}
