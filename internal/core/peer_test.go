package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuperDev321/mediasoup/internal/domain"
)

func newTestPeer() (*Peer, *fakeTransport) {
	p := NewPeer("peer-1", "alice", "room-1")
	t := newFakeTransport("t1")
	p.AddTransport(t)
	return p, t
}

func TestPeerConnectTransportUnknownIsNoop(t *testing.T) {
	p, _ := newTestPeer()
	err := p.ConnectTransport(context.Background(), "missing", json.RawMessage(`{}`))
	assert.NoError(t, err)
}

func TestPeerConnectTransport(t *testing.T) {
	p, tr := newTestPeer()
	err := p.ConnectTransport(context.Background(), "t1", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, tr.connected)
}

func TestPeerCreateProducerSetsLocked(t *testing.T) {
	p, _ := newTestPeer()
	assert.False(t, p.Locked())

	_, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaVideo, true)
	require.NoError(t, err)
	assert.True(t, p.Locked())

	// The flag describes the peer and follows the most recent produce call.
	_, err = p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaAudio, false)
	require.NoError(t, err)
	assert.False(t, p.Locked())
}

func TestPeerCreateProducerRecordsLockedEvenOnFailure(t *testing.T) {
	p, tr := newTestPeer()
	tr.produceErr = errors.New("boom")

	_, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaVideo, true)
	require.Error(t, err)
	assert.True(t, p.Locked())
}

func TestPeerCreateProducerUnknownTransport(t *testing.T) {
	p, _ := newTestPeer()
	_, err := p.CreateProducer(context.Background(), "missing", json.RawMessage(`{}`), domain.MediaVideo, false)
	assert.ErrorIs(t, err, ErrTransportNotFound)
}

func TestPeerProducerRemovedOnTransportClose(t *testing.T) {
	p, tr := newTestPeer()
	producer, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaVideo, false)
	require.NoError(t, err)
	assert.Len(t, p.ProducersSnapshot(), 1)

	tr.produced[0].fireTransportClose()
	assert.Empty(t, p.ProducersSnapshot())
	assert.True(t, tr.produced[0].isClosed(), "producer %s should be closed", producer.ID())
}

func TestPeerCloseProducerOutcomes(t *testing.T) {
	p, tr := newTestPeer()
	producer, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaVideo, false)
	require.NoError(t, err)

	assert.Equal(t, CloseClosed, p.CloseProducer(producer.ID()))
	// Second close of the same id finds nothing and still succeeds.
	assert.Equal(t, CloseAlreadyAbsent, p.CloseProducer(producer.ID()))

	tr.produced = nil
	failing, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaAudio, false)
	require.NoError(t, err)
	tr.produced[0].closeErr = errors.New("engine hiccup")
	assert.Equal(t, CloseErrorIgnored, p.CloseProducer(failing.ID()))
	assert.Empty(t, p.ProducersSnapshot(), "entry removed despite close error")
}

func TestPeerCloseAllProducers(t *testing.T) {
	p, _ := newTestPeer()
	assert.Equal(t, CloseAlreadyAbsent, p.CloseAllProducers())

	_, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaVideo, false)
	require.NoError(t, err)
	_, err = p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaAudio, false)
	require.NoError(t, err)

	assert.Equal(t, CloseClosed, p.CloseAllProducers())
	assert.Empty(t, p.ProducersSnapshot())
}

func TestPeerPauseResumeUnknownProducer(t *testing.T) {
	p, _ := newTestPeer()
	assert.NoError(t, p.PauseProducer("missing"))
	assert.NoError(t, p.ResumeProducer("missing"))
}

func TestPeerPauseResumeProducer(t *testing.T) {
	p, tr := newTestPeer()
	producer, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaVideo, false)
	require.NoError(t, err)

	require.NoError(t, p.PauseProducer(producer.ID()))
	assert.True(t, tr.produced[0].Paused())
	require.NoError(t, p.ResumeProducer(producer.ID()))
	assert.False(t, tr.produced[0].Paused())
}

func TestPeerCreateConsumer(t *testing.T) {
	p, _ := newTestPeer()
	consumer, params, err := p.CreateConsumer(context.Background(), "t1", "prod-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NotNil(t, params)

	assert.Equal(t, consumer.ID(), params.ID)
	assert.Equal(t, domain.ProducerID("prod-1"), params.ProducerID)
	assert.Equal(t, "alice", params.Name)
	assert.False(t, params.Refused)
	assert.True(t, p.HasConsumer(consumer.ID()))

	producerID, ok := p.GetProducerIDOfConsumer(consumer.ID())
	require.True(t, ok)
	assert.Equal(t, domain.ProducerID("prod-1"), producerID)
}

func TestPeerCreateConsumerSimulcastRequestsTopLayers(t *testing.T) {
	p, tr := newTestPeer()
	tr.consumerType = "simulcast"

	_, _, err := p.CreateConsumer(context.Background(), "t1", "prod-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 2, tr.consumed[0].preferredSpatial)
}

func TestPeerCreateConsumerEngineRefusal(t *testing.T) {
	p, tr := newTestPeer()
	tr.consumeErr = errors.New("no shared codec")

	_, params, err := p.CreateConsumer(context.Background(), "t1", "prod-1", json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.Nil(t, params)
	assert.False(t, p.HasConsumer("t1-c1"), "nothing registered on refusal")
}

func TestPeerRemoveConsumer(t *testing.T) {
	p, _ := newTestPeer()
	consumer, _, err := p.CreateConsumer(context.Background(), "t1", "prod-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	p.RemoveConsumer(consumer.ID())
	assert.False(t, p.HasConsumer(consumer.ID()))
	// Unconditional: removing again is fine.
	p.RemoveConsumer(consumer.ID())
}

func TestPeerBlockAllowSets(t *testing.T) {
	p, _ := newTestPeer()
	assert.False(t, p.CheckBlock("bob"))
	assert.False(t, p.CheckAllow("bob"))

	p.AddBlock("bob")
	p.AddAllow("carol")
	assert.True(t, p.CheckBlock("bob"))
	assert.True(t, p.CheckAllow("carol"))
	assert.False(t, p.CheckAllow("bob"))
}

func TestPeerCloseTearsDownTransportsAndClearsSets(t *testing.T) {
	p, tr := newTestPeer()
	_, err := p.CreateProducer(context.Background(), "t1", json.RawMessage(`{}`), domain.MediaVideo, true)
	require.NoError(t, err)
	p.AddBlock("bob")
	p.AddAllow("carol")

	assert.Equal(t, CloseClosed, p.Close())
	assert.True(t, tr.isClosed())
	assert.False(t, p.CheckBlock("bob"))
	assert.False(t, p.CheckAllow("carol"))
}

func TestPeerCloseWithoutTransports(t *testing.T) {
	p := NewPeer("peer-2", "bob", "room-1")
	assert.Equal(t, CloseAlreadyAbsent, p.Close())
}

func TestValidPeerName(t *testing.T) {
	assert.NoError(t, domain.ValidPeerName("alice"))
	assert.ErrorIs(t, domain.ValidPeerName(""), domain.ErrPeerNameEmpty)

	long := make([]byte, domain.MaxPeerNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, domain.ValidPeerName(string(long)), domain.ErrPeerNameTooLong)
}
