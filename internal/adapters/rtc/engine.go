// Package rtc implements the media engine contract on pion/webrtc's
// ORTC-style primitives: ICE gatherer plus ICE/DTLS transports per peer
// transport, RTP senders/receivers for streams, and an in-process RTP relay
// fanning each producer out to its consumers.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/config"
	"github.com/SuperDev321/mediasoup/internal/core"
)

type Engine struct {
	cfg config.MediaConfig
}

func NewEngine(cfg config.MediaConfig) *Engine {
	return &Engine{cfg: cfg}
}

// CreateWorkers builds the fixed worker pool. Workers here are in-process
// slots sharing the host, each with its own pion setting engine; the
// round-robin assignment upstream still spreads rooms across them.
func (e *Engine) CreateWorkers(n int) ([]core.Worker, error) {
	if n <= 0 {
		n = 1
	}
	workers := make([]core.Worker, 0, n)
	for i := 0; i < n; i++ {
		w, err := newWorker(i, e.cfg)
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}
	log.Info().Str("module", "rtc").Int("workers", n).Msg("worker pool ready")
	return workers, nil
}

type worker struct {
	id int
	se webrtc.SettingEngine

	mu     sync.Mutex
	died   []func()
	closed bool
}

func newWorker(id int, cfg config.MediaConfig) (*worker, error) {
	se := webrtc.SettingEngine{}
	if cfg.RTCMinPort > 0 && cfg.RTCMaxPort > cfg.RTCMinPort {
		if err := se.SetEphemeralUDPPortRange(cfg.RTCMinPort, cfg.RTCMaxPort); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}
	if len(cfg.ListenIPs) > 0 {
		se.SetNAT1To1IPs(cfg.ListenIPs, webrtc.ICECandidateTypeHost)
	}
	return &worker{id: id, se: se}, nil
}

func (w *worker) CreateRouter(ctx context.Context) (core.Router, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("worker %d closed", w.id)
	}
	return newRouter(w)
}

func (w *worker) OnDied(fn func()) {
	w.mu.Lock()
	w.died = append(w.died, fn)
	w.mu.Unlock()
}

func (w *worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	log.Info().Str("module", "rtc").Int("worker", w.id).Msg("worker closed")
}
