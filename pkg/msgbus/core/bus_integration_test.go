package core_test

// End-to-end scenarios wiring a real Router against real Endpoints (spec §8
// "End-to-end scenarios (literal)"). Lives in an external test package so it
// can import both core and endpoint without creating an import cycle (the
// endpoint package itself imports core), and drives them through the shared
// internal/msgbustest harness rather than hand-rolled polling helpers.

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-msgbus/msgbus/internal/msgbustest"
	"github.com/go-msgbus/msgbus/pkg/msgbus/core"
	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/endpoint"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

func TestInProcessPingScenario(t *testing.T) {
	bus := msgbustest.NewBus(t, core.RouterConfig{IDs: types.IDRange{Base: 1, End: 1000}})
	a := bus.Attach(0)
	b := bus.Attach(0)

	ping := types.NewMessageID("eagiTest", "ping")
	pong := types.NewMessageID("eagiTest", "pong")
	b.Subscribe(ping)
	a.Subscribe(pong)

	var aID, bID types.EndpointID
	msgbustest.DriveBusUntil(t, bus, time.Second, func() bool {
		var okA, okB bool
		aID, okA = a.GetID()
		bID, okB = b.GetID()
		return okA && okB
	})

	require.True(t, a.Post(ping, bID, nil))

	var seenPing types.Message
	msgbustest.DriveBusUntil(t, bus, time.Second, func() bool {
		return b.ProcessOne(ping, func(m types.Message) { seenPing = m })
	})
	assert.Equal(t, aID, seenPing.SourceID)

	require.True(t, b.RespondTo(seenPing, pong, nil))

	var seenPong types.Message
	msgbustest.DriveBusUntil(t, bus, time.Second, func() bool {
		return a.ProcessOne(pong, func(m types.Message) { seenPong = m })
	})
	assert.Equal(t, bID, seenPong.SourceID)
}

func TestIDPreconfigurationScenario(t *testing.T) {
	bus := msgbustest.NewBus(t, core.RouterConfig{IDs: types.IDRange{Base: 1000, End: 2000}})

	want := []types.EndpointID{11, 17, 23}
	for _, id := range want {
		bus.Attach(id)
	}

	msgbustest.DriveBusUntil(t, bus, 5*time.Second, func() bool {
		for _, ep := range bus.Endpoints {
			if _, ok := ep.GetID(); !ok {
				return false
			}
		}
		return true
	})

	for i, ep := range bus.Endpoints {
		got, ok := ep.GetID()
		require.True(t, ok)
		assert.Equal(t, want[i], got)
	}
}

func TestBroadcastSubscriptionFanOutScenario(t *testing.T) {
	bus := msgbustest.NewBus(t, core.RouterConfig{IDs: types.IDRange{Base: 1, End: 1000}})
	a := bus.Attach(0)
	b := bus.Attach(0)
	c := bus.Attach(0)

	topicY := types.NewMessageID("x", "y")
	topicZ := types.NewMessageID("x", "z")
	b.Subscribe(topicY)
	c.Subscribe(topicZ)

	msgbustest.DriveBusUntil(t, bus, time.Second, func() bool {
		_, okA := a.GetID()
		_, okB := b.GetID()
		_, okC := c.GetID()
		return okA && okB && okC
	})

	require.True(t, a.Broadcast(topicY, nil))

	bFired := 0
	msgbustest.DriveBusUntil(t, bus, time.Second, func() bool {
		bFired += b.ProcessAll(topicY, func(types.Message) {})
		return bFired > 0
	})
	assert.Equal(t, 1, bFired)

	cFired := c.ProcessAll(topicY, func(types.Message) {})
	assert.Equal(t, 0, cFired, "C never subscribed to x/y and must not see it")
}

func TestConnectionLossAndRecoveryScenario(t *testing.T) {
	r := core.NewRouter(core.RouterConfig{IDs: types.IDRange{Base: 1, End: 1000}, Name: t.Name()}, definition.NewNoopLogger())
	r.AddAcceptor(core.NewInProcessAcceptor("bus"))

	conn := core.DialInProcess("bus", 0)
	a := endpoint.New(endpoint.Config{NoIDTimeout: time.Millisecond}, conn, definition.NewNoopLogger())

	var seq []endpoint.SignalKind
	a.OnSignal(func(s endpoint.Signal) { seq = append(seq, s.Kind) })

	tick := func() {
		r.Update(time.Now())
		a.Update(time.Now())
	}

	msgbustest.DriveUntil(t, time.Second, func() bool {
		_, ok := a.GetID()
		return ok
	}, tick)
	require.GreaterOrEqual(t, len(seq), 1)
	require.Equal(t, endpoint.SignalConnectionEstablished, seq[0])

	conn.SetUsable(false)
	msgbustest.DriveUntil(t, time.Second, func() bool {
		for _, k := range seq {
			if k == endpoint.SignalConnectionLost {
				return true
			}
		}
		return false
	}, tick)

	conn.SetUsable(true)
	msgbustest.DriveUntil(t, time.Second, func() bool {
		count := 0
		for _, k := range seq {
			if k == endpoint.SignalConnectionEstablished {
				count++
			}
		}
		return count >= 2
	}, tick)

	assert.Equal(t, []endpoint.SignalKind{
		endpoint.SignalConnectionEstablished,
		endpoint.SignalConnectionLost,
		endpoint.SignalConnectionEstablished,
	}, seq)
}
