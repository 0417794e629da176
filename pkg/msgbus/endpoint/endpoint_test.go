package endpoint

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-msgbus/msgbus/pkg/msgbus/core"
	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

var appPing = types.NewMessageID("eagiTest", "ping")
var appPong = types.NewMessageID("eagiTest", "pong")

// assignOverConn hand-drives the router side of the id-assignment handshake
// directly over an InProcessConnection, so endpoint tests can exercise the
// identity state machine without the full Router implementation.
func assignOverConn(t *testing.T, conn core.Connection, id types.EndpointID) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range conn.FetchMessages() {
			if msg.ID == types.MsgRequestID {
				idBuf := make([]byte, 8)
				binary.BigEndian.PutUint64(idBuf, uint64(id))
				conn.Send(types.NewMessage(types.MsgAssignID, 0, id, idBuf))
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Errorf("timed out waiting for request-id on %s", conn.Kind())
}

func TestIdentityAcquisitionAssignsFromRouter(t *testing.T) {
	a, b := core.NewInProcessPair(0)
	ep := New(Config{NoIDTimeout: time.Millisecond}, a, definition.NewNoopLogger())

	go assignOverConn(t, b, 7)

	require.Eventually(t, func() bool {
		ep.Update(time.Now())
		_, ok := ep.GetID()
		return ok
	}, time.Second, time.Millisecond)

	id, ok := ep.GetID()
	assert.True(t, ok)
	assert.Equal(t, types.EndpointID(7), id)
}

func TestPingPongRoundTrip(t *testing.T) {
	connA, routerA := core.NewInProcessPair(0)
	connB, routerB := core.NewInProcessPair(0)

	a := New(Config{NoIDTimeout: time.Millisecond}, connA, definition.NewNoopLogger())
	b := New(Config{NoIDTimeout: time.Millisecond}, connB, definition.NewNoopLogger())

	go assignOverConn(t, routerA, 1)
	go assignOverConn(t, routerB, 2)

	require.Eventually(t, func() bool {
		a.Update(time.Now())
		b.Update(time.Now())
		_, okA := a.GetID()
		_, okB := b.GetID()
		return okA && okB
	}, time.Second, time.Millisecond)

	a.Subscribe(appPong)
	b.Subscribe(appPing)

	bID, _ := b.GetID()
	require.True(t, a.Post(appPing, bID, nil))

	var pongReceived types.Message
	// relay directly: the two endpoints don't share a router in this test,
	// so forward whatever one side sent straight onto the other's connection.
	require.Eventually(t, func() bool {
		a.Update(time.Now())
		for _, msg := range routerA.FetchMessages() {
			routerB.Send(msg)
		}
		b.Update(time.Now())
		b.ProcessOne(appPing, func(trigger types.Message) {
			b.RespondTo(trigger, appPong, nil)
		})
		for _, msg := range routerB.FetchMessages() {
			routerA.Send(msg)
		}
		a.Update(time.Now())
		return a.ProcessOne(appPong, func(msg types.Message) { pongReceived = msg })
	}, time.Second, time.Millisecond)

	assert.Equal(t, bID, pongReceived.SourceID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	a, _ := core.NewInProcessPair(0)
	ep := New(Config{PreconfiguredID: 5}, a, definition.NewNoopLogger())

	ep.Subscribe(appPong)
	ep.Unsubscribe(appPong)

	// once unsubscribed, no inbox queue is left to receive a late delivery.
	ep.mu.Lock()
	_, tracked := ep.inbox[appPong]
	ep.mu.Unlock()
	assert.False(t, tracked, "unsubscribe must drop the inbox entry entirely once refcount reaches zero")

	delivered := ep.ProcessAll(appPong, func(types.Message) {})
	assert.Equal(t, 0, delivered)
}

func TestConnectionLossAndRecoverySignalSequence(t *testing.T) {
	a, _ := core.NewInProcessPair(0)
	conn := a
	ep := New(Config{PreconfiguredID: 3}, conn, definition.NewNoopLogger())

	var seq []SignalKind
	ep.OnSignal(func(s Signal) { seq = append(seq, s.Kind) })

	ep.Update(time.Now()) // initial connection_established

	conn.SetUsable(false)
	ep.Update(time.Now()) // connection_lost

	conn.SetUsable(true)
	ep.Update(time.Now()) // connection_established again

	require.Len(t, seq, 3)
	assert.Equal(t, SignalConnectionEstablished, seq[0])
	assert.Equal(t, SignalConnectionLost, seq[1])
	assert.Equal(t, SignalConnectionEstablished, seq[2])
}

// TestStillAliveCarriesProcessInstanceFingerprint exercises spec §3/§4.1/§9's
// process_instance_id requirement: the periodic still-alive beacon must
// carry this process's singleton instance fingerprint in its sequence
// field, the only place a router can observe it to detect a relaunch.
func TestStillAliveCarriesProcessInstanceFingerprint(t *testing.T) {
	a, b := core.NewInProcessPair(0)
	ep := New(Config{NoIDTimeout: time.Millisecond, AliveNotifyPeriod: time.Millisecond}, a, definition.NewNoopLogger())

	go assignOverConn(t, b, 11)

	require.Eventually(t, func() bool {
		ep.Update(time.Now())
		_, ok := ep.GetID()
		return ok
	}, time.Second, time.Millisecond)

	ep.Update(time.Now()) // announce-id

	require.Eventually(t, func() bool {
		ep.Update(time.Now().Add(time.Hour))
		for _, msg := range b.FetchMessages() {
			if msg.ID == types.MsgStillAlive {
				assert.NotZero(t, msg.SequenceNo)
				assert.Equal(t, types.CurrentProcessInstanceID().Fingerprint(), msg.SequenceNo)
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
