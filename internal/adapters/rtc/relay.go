package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

type trackState int32

const (
	trackStateOK trackState = iota
	trackStateMuted
	trackStateDelete
)

// outTrack is a single outgoing leg of a relay.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // zero value is trackStateOK
}

func newOutTrack(track *webrtc.TrackLocalStaticRTP) *outTrack {
	return &outTrack{track: track}
}

func (ot *outTrack) getState() trackState { return trackState(ot.state.Load()) }
func (ot *outTrack) markMuted()           { ot.state.Store(int32(trackStateMuted)) }
func (ot *outTrack) markDelete()          { ot.state.Store(int32(trackStateDelete)) }

// relay pumps RTP from one producer track to all of its consumers.
type relay struct {
	src    *webrtc.TrackRemote
	paused *atomic.Bool

	mu        sync.RWMutex
	outTracks map[domain.ConsumerID]*outTrack
	stopped   atomic.Bool
}

func newRelay(src *webrtc.TrackRemote, paused *atomic.Bool) *relay {
	return &relay{
		src:       src,
		paused:    paused,
		outTracks: make(map[domain.ConsumerID]*outTrack),
	}
}

func (r *relay) loop(producerID string) {
	logger := log.With().Str("module", "rtc.relay").Str("producer", producerID).Logger()
	for {
		if r.stopped.Load() {
			return
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			if !r.stopped.Load() {
				logger.Warn().Err(err).Msg("read rtp, stopping relay")
			}
			r.markAllDelete()
			return
		}
		if r.paused.Load() {
			continue
		}
		r.forward(pkt, &logger)
	}
}

func (r *relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[domain.ConsumerID]*outTrack, len(r.outTracks))
	for id, ot := range r.outTracks {
		snapshot[id] = ot
	}
	r.mu.RUnlock()

	var dirty []domain.ConsumerID
	for id, ot := range snapshot {
		switch ot.getState() {
		case trackStateDelete:
			dirty = append(dirty, id)
		case trackStateMuted:
		case trackStateOK:
			if err := ot.track.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("consumer", string(id)).Msg("write rtp, dropping leg")
				ot.markDelete()
				dirty = append(dirty, id)
			}
		}
	}

	if len(dirty) > 0 {
		r.mu.Lock()
		for _, id := range dirty {
			delete(r.outTracks, id)
		}
		r.mu.Unlock()
	}
}

func (r *relay) addOutTrack(id domain.ConsumerID, ot *outTrack) {
	r.mu.Lock()
	r.outTracks[id] = ot
	r.mu.Unlock()
}

func (r *relay) removeOutTrack(id domain.ConsumerID) {
	r.mu.Lock()
	if ot, ok := r.outTracks[id]; ok {
		ot.markDelete()
		delete(r.outTracks, id)
	}
	r.mu.Unlock()
}

func (r *relay) markAllDelete() {
	r.mu.Lock()
	for _, ot := range r.outTracks {
		ot.markDelete()
	}
	r.mu.Unlock()
}

func (r *relay) stop() {
	r.stopped.Store(true)
	r.markAllDelete()
}
