package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/SuperDev321/mediasoup/internal/core"
	"github.com/SuperDev321/mediasoup/internal/domain"
)

// routerCodec is one entry of the router's advertised capability set.
type routerCodec struct {
	Kind                 domain.MediaKind `json:"kind"`
	MimeType             string           `json:"mimeType"`
	ClockRate            uint32           `json:"clockRate"`
	Channels             uint16           `json:"channels,omitempty"`
	PreferredPayloadType uint8            `json:"preferredPayloadType"`
}

type routerCapabilities struct {
	Codecs []routerCodec `json:"codecs"`
}

// router owns the per-room codec table and the room-wide producer directory
// that consumability checks resolve against.
type router struct {
	id     string
	api    *webrtc.API
	codecs []webrtc.RTPCodecParameters
	caps   json.RawMessage

	mu        sync.RWMutex
	producers map[domain.ProducerID]*producer
}

func newRouter(w *worker) (*router, error) {
	audio := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		PayloadType: 111,
	}
	video := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterCodec(audio, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register audio codec: %w", err)
	}
	if err := me.RegisterCodec(video, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register video codec: %w", err)
	}

	caps, err := json.Marshal(routerCapabilities{Codecs: []routerCodec{
		{Kind: domain.MediaAudio, MimeType: audio.MimeType, ClockRate: audio.ClockRate, Channels: audio.Channels, PreferredPayloadType: uint8(audio.PayloadType)},
		{Kind: domain.MediaVideo, MimeType: video.MimeType, ClockRate: video.ClockRate, PreferredPayloadType: uint8(video.PayloadType)},
	}})
	if err != nil {
		return nil, err
	}

	return &router{
		id:        uuid.NewString(),
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(w.se)),
		codecs:    []webrtc.RTPCodecParameters{audio, video},
		caps:      caps,
		producers: make(map[domain.ProducerID]*producer),
	}, nil
}

func (r *router) RtpCapabilities() json.RawMessage { return r.caps }

// CanConsume requires the producer to exist on this router and the caller's
// capability set to list a codec matching the producer's mime type.
func (r *router) CanConsume(producerID domain.ProducerID, rtpCapabilities json.RawMessage) bool {
	r.mu.RLock()
	p, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	var caps routerCapabilities
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil || len(caps.Codecs) == 0 {
		return false
	}
	want := r.codecFor(p.kind).MimeType
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, want) {
			return true
		}
	}
	return false
}

func (r *router) CreateTransport(ctx context.Context, opts core.TransportOptions) (core.Transport, error) {
	return newTransport(ctx, r, opts)
}

func (r *router) codecFor(kind domain.MediaKind) webrtc.RTPCodecParameters {
	if kind == domain.MediaAudio {
		return r.codecs[0]
	}
	return r.codecs[1]
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *router) unregisterProducer(id domain.ProducerID) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *router) producer(id domain.ProducerID) (*producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}
