package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuperDev321/mediasoup/internal/core"
	"github.com/SuperDev321/mediasoup/internal/domain"
)

type stubWorker struct {
	mu      sync.Mutex
	routers int
}

func (w *stubWorker) CreateRouter(ctx context.Context) (core.Router, error) {
	w.mu.Lock()
	w.routers++
	w.mu.Unlock()
	return &stubRouter{}, nil
}

func (w *stubWorker) routerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.routers
}

func (w *stubWorker) OnDied(func()) {}
func (w *stubWorker) Close()        {}

type stubRouter struct {
	transports int
}

func (r *stubRouter) RtpCapabilities() json.RawMessage { return json.RawMessage(`{}`) }

func (r *stubRouter) CanConsume(domain.ProducerID, json.RawMessage) bool { return true }

func (r *stubRouter) CreateTransport(ctx context.Context, opts core.TransportOptions) (core.Transport, error) {
	return nil, fmt.Errorf("not implemented")
}

type nopSignaler struct{}

func (nopSignaler) Send(domain.PeerID, string, any) error { return nil }

func newTestRegistry(n int) (*Registry, []*stubWorker) {
	stubs := make([]*stubWorker, n)
	workers := make([]core.Worker, n)
	for i := range stubs {
		stubs[i] = &stubWorker{}
		workers[i] = stubs[i]
	}
	reg := NewRegistry(workers, core.RoomOptions{}, nil)
	reg.BindSignaler(nopSignaler{})
	return reg, stubs
}

func TestRegistryCreateRoomStrict(t *testing.T) {
	reg, _ := newTestRegistry(1)

	room, created, err := reg.CreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, room)

	// Same id again: existing room handed back, declinable outcome.
	again, created, err := reg.CreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, room, again)
}

func TestRegistryGetOrCreateRoomLenient(t *testing.T) {
	reg, _ := newTestRegistry(1)

	room, err := reg.GetOrCreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, room)

	again, err := reg.GetOrCreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.Same(t, room, again)
}

func TestRegistryRoundRobinAssignment(t *testing.T) {
	reg, stubs := newTestRegistry(3)

	for i := 0; i < 7; i++ {
		_, _, err := reg.CreateRoom(context.Background(), domain.RoomID(fmt.Sprintf("r%d", i)))
		require.NoError(t, err)
	}

	// 7 rooms over 3 workers: 3, 2, 2.
	assert.Equal(t, 3, stubs[0].routerCount())
	assert.Equal(t, 2, stubs[1].routerCount())
	assert.Equal(t, 2, stubs[2].routerCount())
}

func TestRegistryDuplicateCreateDoesNotAdvanceRotation(t *testing.T) {
	reg, stubs := newTestRegistry(2)

	_, _, err := reg.CreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	// Duplicate hits the existing room and must not consume a slot.
	_, _, err = reg.CreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	_, _, err = reg.CreateRoom(context.Background(), "r2")
	require.NoError(t, err)

	assert.Equal(t, 1, stubs[0].routerCount())
	assert.Equal(t, 1, stubs[1].routerCount())
}

func TestRegistryRoomLookup(t *testing.T) {
	reg, _ := newTestRegistry(1)
	_, ok := reg.Room("missing")
	assert.False(t, ok)

	room, _, err := reg.CreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	got, ok := reg.Room("r1")
	require.True(t, ok)
	assert.Same(t, room, got)
}

func TestRegistryRemoveRoomIfEmpty(t *testing.T) {
	reg, _ := newTestRegistry(1)
	room, _, err := reg.CreateRoom(context.Background(), "r1")
	require.NoError(t, err)

	assert.False(t, reg.RemoveRoomIfEmpty("missing"))

	room.AddPeer(core.NewPeer("p1", "alice", "r1"))
	assert.False(t, reg.RemoveRoomIfEmpty("r1"), "occupied room stays")

	room.RemovePeer("p1")
	assert.True(t, reg.RemoveRoomIfEmpty("r1"))
	_, ok := reg.Room("r1")
	assert.False(t, ok)

	// Already gone.
	assert.False(t, reg.RemoveRoomIfEmpty("r1"))
}

// gateWorker parks CreateRouter until released so tests can observe what
// the registry does while an engine call is outstanding.
type gateWorker struct {
	entered chan struct{}
	release chan struct{}
}

func (w *gateWorker) CreateRouter(ctx context.Context) (core.Router, error) {
	w.entered <- struct{}{}
	<-w.release
	return &stubRouter{}, nil
}

func (w *gateWorker) OnDied(func()) {}
func (w *gateWorker) Close()        {}

func TestRegistryLookupNotBlockedByRoomCreation(t *testing.T) {
	w := &gateWorker{entered: make(chan struct{}, 1), release: make(chan struct{})}
	reg := NewRegistry([]core.Worker{w}, core.RoomOptions{}, nil)
	reg.BindSignaler(nopSignaler{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := reg.GetOrCreateRoom(context.Background(), "slow")
		assert.NoError(t, err)
	}()
	<-w.entered

	lookup := make(chan bool, 1)
	go func() {
		_, ok := reg.Room("other")
		lookup <- ok
	}()
	select {
	case ok := <-lookup:
		assert.False(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Room lookup for an unrelated room blocked behind an outstanding router creation")
	}

	close(w.release)
	<-done
	_, ok := reg.Room("slow")
	assert.True(t, ok)
}

func TestRegistryConcurrentCreateSameID(t *testing.T) {
	w := &gateWorker{entered: make(chan struct{}, 2), release: make(chan struct{})}
	reg := NewRegistry([]core.Worker{w}, core.RoomOptions{}, nil)
	reg.BindSignaler(nopSignaler{})

	rooms := make(chan *core.Room, 2)
	for i := 0; i < 2; i++ {
		go func() {
			room, err := reg.GetOrCreateRoom(context.Background(), "r1")
			assert.NoError(t, err)
			rooms <- room
		}()
	}
	// Both racers get past the existence check before either inserts.
	<-w.entered
	<-w.entered
	close(w.release)

	first, second := <-rooms, <-rooms
	assert.Same(t, first, second, "loser of the insert race must get the winner's room")

	got, ok := reg.Room("r1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistryList(t *testing.T) {
	reg, _ := newTestRegistry(1)
	assert.Empty(t, reg.List())

	room, _, err := reg.CreateRoom(context.Background(), "r1")
	require.NoError(t, err)
	room.AddPeer(core.NewPeer("p1", "alice", "r1"))

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, domain.RoomID("r1"), list[0].ID)
	require.Len(t, list[0].Peers, 1)
	assert.Equal(t, "alice", list[0].Peers[0].Name)
}
