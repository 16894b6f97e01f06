// Package app holds the process-wide session registry: the room map, the
// engine worker pool and the round-robin assignment policy.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SuperDev321/mediasoup/internal/core"
	"github.com/SuperDev321/mediasoup/internal/domain"
	"github.com/SuperDev321/mediasoup/internal/metrics"
)

// Registry maps room ids to rooms and assigns each new room a worker from
// the pool. The pool is fixed at startup; the rotating index is the only
// shared mutable counter and advances under the registry lock when a slot
// is taken. Router creation happens with the lock released so an outstanding
// engine call never stalls lookups for other rooms.
type Registry struct {
	opts    core.RoomOptions
	metrics *metrics.Metrics

	mu      sync.Mutex
	rooms   map[domain.RoomID]*core.Room
	workers []core.Worker
	next    int
	sig     core.Signaler
}

func NewRegistry(workers []core.Worker, opts core.RoomOptions, m *metrics.Metrics) *Registry {
	return &Registry{
		opts:    opts,
		metrics: m,
		rooms:   make(map[domain.RoomID]*core.Room),
		workers: workers,
	}
}

// BindSignaler wires the gateway's send primitive in after construction;
// the gateway itself needs the registry, so one of the two is bound late.
func (s *Registry) BindSignaler(sig core.Signaler) {
	s.mu.Lock()
	s.sig = sig
	s.mu.Unlock()
}

// CreateRoom is the strict path: an existing id is a declinable "already
// exists" outcome (created=false, no error), not a failure.
func (s *Registry) CreateRoom(ctx context.Context, id domain.RoomID) (*core.Room, bool, error) {
	s.mu.Lock()
	if room, ok := s.rooms[id]; ok {
		s.mu.Unlock()
		return room, false, nil
	}
	worker, sig, idx := s.takeWorkerLocked()
	s.mu.Unlock()

	return s.newRoom(ctx, id, worker, sig, idx)
}

// GetOrCreateRoom is the lenient join path: the room is created
// transparently when absent.
func (s *Registry) GetOrCreateRoom(ctx context.Context, id domain.RoomID) (*core.Room, error) {
	s.mu.Lock()
	if room, ok := s.rooms[id]; ok {
		s.mu.Unlock()
		return room, nil
	}
	worker, sig, idx := s.takeWorkerLocked()
	s.mu.Unlock()

	room, _, err := s.newRoom(ctx, id, worker, sig, idx)
	return room, err
}

// takeWorkerLocked picks the next pool slot and advances the rotation.
// Called with s.mu held.
func (s *Registry) takeWorkerLocked() (core.Worker, core.Signaler, int) {
	idx := s.next
	s.next = (s.next + 1) % len(s.workers)
	return s.workers[idx], s.sig, idx
}

// newRoom builds the room with the lock released: worker.CreateRouter
// reaches the engine and must not stall unrelated lookups. Double-checked
// insert afterwards; losing the race hands back the winner's room.
func (s *Registry) newRoom(ctx context.Context, id domain.RoomID, worker core.Worker, sig core.Signaler, idx int) (*core.Room, bool, error) {
	room, err := core.NewRoom(ctx, id, worker, sig, s.opts)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if existing, ok := s.rooms[id]; ok {
		s.mu.Unlock()
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("lost creation race, discarding room")
		return existing, false, nil
	}
	s.rooms[id] = room
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RoomCreated()
	}
	log.Info().Str("module", "app.registry").Str("room", string(id)).Int("worker", idx).Msg("room registered")
	return room, true, nil
}

func (s *Registry) Room(id domain.RoomID) (*core.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	return room, ok
}

// RemoveRoomIfEmpty deletes the room once its peer count reached zero.
// Empty rooms are garbage; no retained empties.
func (s *Registry) RemoveRoomIfEmpty(id domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok || room.PeerCount() > 0 {
		return false
	}
	delete(s.rooms, id)
	if s.metrics != nil {
		s.metrics.RoomRemoved()
	}
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("empty room removed")
	return true
}

func (s *Registry) List() []core.RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RoomInfo, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room.Info())
	}
	return out
}

func (s *Registry) Metrics() *metrics.Metrics { return s.metrics }
