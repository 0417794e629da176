package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

func newTestRouter(t *testing.T, conf RouterConfig) *Router {
	t.Helper()
	conf.Name = t.Name()
	return NewRouter(conf, definition.NewNoopLogger())
}

// attachClient dials an in-process connection at the router's acceptor and
// drives Update until the router promotes it, returning the client's
// connection and its assigned id.
func attachClient(t *testing.T, r *Router, acceptorName string, preconfigured types.EndpointID) (*InProcessConnection, types.EndpointID) {
	t.Helper()
	client := DialInProcess(acceptorName, 0)

	var payload []byte
	if preconfigured.IsValid() {
		payload = idPayload(preconfigured)
	}
	client.Send(types.NewMessage(types.MsgRequestID, 0, 0, payload))

	var id types.EndpointID
	require.Eventually(t, func() bool {
		r.Update(time.Now())
		for _, msg := range client.FetchMessages() {
			if msg.ID == types.MsgAssignID || msg.ID == types.MsgConfirmID {
				got, ok := decodeIDPayload(msg.Payload)
				if ok {
					id = got
					return true
				}
			}
		}
		return false
	}, time.Second, time.Millisecond)
	return client, id
}

func TestRouterAssignsFreshIDOnRequest(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 100, End: 200}})
	r.AddAcceptor(NewInProcessAcceptor("a"))

	_, id := attachClient(t, r, "a", 0)
	assert.True(t, id.IsValid())
	assert.True(t, r.conf.IDs.Contains(id))
}

func TestRouterConfirmsPreconfiguredID(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 100, End: 200}})
	r.AddAcceptor(NewInProcessAcceptor("a"))

	_, id := attachClient(t, r, "a", 42)
	assert.Equal(t, types.EndpointID(42), id)
}

func TestRouterPasswordHandshakeRequiresCorrectSecret(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}, Password: "hunter2"})
	r.AddAcceptor(NewInProcessAcceptor("a"))

	client := DialInProcess("a", 0)
	client.Send(types.NewMessage(types.MsgRequestID, 0, 0, nil))

	require.Eventually(t, func() bool {
		r.Update(time.Now())
		for _, msg := range client.FetchMessages() {
			if msg.ID == types.MsgReqRouterPwd {
				client.Send(types.NewMessage(types.MsgEncRouterPwd, 0, 0, []byte("hunter2")))
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	var assigned bool
	require.Eventually(t, func() bool {
		r.Update(time.Now())
		for _, msg := range client.FetchMessages() {
			if msg.ID == types.MsgAssignID {
				assigned = true
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	assert.True(t, assigned)
}

func TestRouterForwardsTargetedMessageAndIncrementsHopCount(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))

	c1, id1 := attachClient(t, r, "a", 0)
	c2, id2 := attachClient(t, r, "a", 0)
	require.NotEqual(t, id1, id2)

	appMsg := types.NewMessageID("eagiTest", "ping")
	c1.Send(types.NewMessage(appMsg, id1, id2, []byte("hi")))

	var received types.Message
	require.Eventually(t, func() bool {
		r.Update(time.Now())
		for _, msg := range c2.FetchMessages() {
			if msg.ID == appMsg {
				received = msg
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Equal(t, id1, received.SourceID)
	assert.Equal(t, uint32(1), received.HopCount)
	assert.Equal(t, []byte("hi"), received.Payload)
}

func TestRouterBroadcastRespectsSubscriptions(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))

	c1, id1 := attachClient(t, r, "a", 0)
	c2, id2 := attachClient(t, r, "a", 0)
	c3, _ := attachClient(t, r, "a", 0)

	topicY := types.NewMessageID("x", "y")
	topicZ := types.NewMessageID("x", "z")

	c2.Send(types.NewMessage(types.MsgSubscribeTo, id2, 0, encodeMessageID(topicY)))
	c3.Send(types.NewMessage(types.MsgSubscribeTo, 0, 0, encodeMessageID(topicZ)))
	require.Eventually(t, func() bool {
		r.Update(time.Now())
		r.mu.Lock()
		n := len(r.subs.subscribers(topicY)) + len(r.subs.subscribers(topicZ))
		r.mu.Unlock()
		return n == 2
	}, time.Second, time.Millisecond)

	c1.Send(types.NewMessage(topicY, id1, types.Broadcast, nil))

	require.Eventually(t, func() bool {
		r.Update(time.Now())
		for _, msg := range c2.FetchMessages() {
			if msg.ID == topicY {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Empty(t, c3.FetchMessages(), "C did not subscribe to x/y and must not receive it")
}

func TestRouterDropsMessagesExceedingHopCeiling(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))
	c1, id1 := attachClient(t, r, "a", 0)
	c2, id2 := attachClient(t, r, "a", 0)

	appMsg := types.NewMessage(types.NewMessageID("eagiTest", "ping"), id1, id2, nil)
	appMsg.HopCount = types.HopCeiling + 1
	c1.Send(appMsg)

	r.Update(time.Now())
	r.Update(time.Now())
	assert.Empty(t, c2.FetchMessages())
	forwarded, dropped := r.Stats()
	assert.Equal(t, uint64(0), forwarded)
	assert.GreaterOrEqual(t, dropped, uint64(1))
}

func TestRouterTeardownOnGoodbyeDropsLateTargetedMessage(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))
	c1, id1 := attachClient(t, r, "a", 0)
	c2, id2 := attachClient(t, r, "a", 0)

	c2.Send(types.NewMessage(types.MsgByeByeEndp, id2, 0, nil))
	r.Update(time.Now())

	c1.Send(types.NewMessage(types.NewMessageID("eagiTest", "ping"), id1, id2, nil))
	r.Update(time.Now())

	r.mu.Lock()
	_, stillRouted := r.nodes[id2]
	_, gracePeriod := r.recentlyDisconnected[id2]
	r.mu.Unlock()
	assert.False(t, stillRouted)
	assert.True(t, gracePeriod)
}

// TestRouterTeardownOnLivenessExpiry exercises eviction via the liveness
// deadline itself (spec §3 "Router's view of each attached endpoint"),
// distinct from the explicit-goodbye path above: a connection that merely
// goes transiently unusable (spec §8 scenario 6) must NOT be evicted.
func TestRouterTeardownOnLivenessExpiry(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))
	_, id := attachClient(t, r, "a", 0)

	r.mu.Lock()
	r.infos[id].Deadline = time.Millisecond
	r.infos[id].LastActivity = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	r.Update(time.Now())

	r.mu.Lock()
	_, stillRouted := r.nodes[id]
	r.mu.Unlock()
	assert.False(t, stillRouted)
}

func TestRouterKeepsNodeThroughTransientUnusability(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))
	c1, id := attachClient(t, r, "a", 0)

	c1.SetUsable(false)
	r.Update(time.Now())
	c1.SetUsable(true)
	r.Update(time.Now())

	r.mu.Lock()
	_, stillRouted := r.nodes[id]
	r.mu.Unlock()
	assert.True(t, stillRouted)
}

// TestRouterFlowInfoReflectsObservedTraffic exercises spec §9's feedback
// loop end to end: UpdateMessageAge (and, by the same path, each forwarded
// message's own age in forwardOne) must move the sliding-window average
// the periodic flow-info broadcast carries, or endpoints' BLOB pacing
// never sees a real signal.
func TestRouterFlowInfoReflectsObservedTraffic(t *testing.T) {
	r := newTestRouter(t, RouterConfig{
		IDs:            types.IDRange{Base: 1, End: 10},
		FlowInfoPeriod: time.Millisecond,
	})
	r.AddAcceptor(NewInProcessAcceptor("a"))
	c, _ := attachClient(t, r, "a", 0)

	r.UpdateMessageAge(200 * time.Millisecond)

	require.Eventually(t, func() bool {
		r.Update(time.Now())
		for _, msg := range c.FetchMessages() {
			if msg.ID == types.MsgFlowInfo {
				avg, ok := decodeIDPayload(msg.Payload)
				return ok && avg > 0
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

// TestRouterStillAliveDetectsProcessRelaunch exercises spec §3's
// process_instance_id re-launch detection: a still-alive beacon carrying a
// new fingerprint for an id the router already has one on file for must be
// recognized as a relaunch.
func TestRouterStillAliveDetectsProcessRelaunch(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))
	c, id := attachClient(t, r, "a", 0)

	first := types.NewMessage(types.MsgStillAlive, id, 0, nil)
	first.SequenceNo = 111
	c.Send(first)
	r.Update(time.Now())

	r.mu.Lock()
	assert.Equal(t, uint64(111), r.infos[id].ProcessInst)
	r.mu.Unlock()

	relaunched := types.NewMessage(types.MsgStillAlive, id, 0, nil)
	relaunched.SequenceNo = 222
	c.Send(relaunched)
	r.Update(time.Now())

	r.mu.Lock()
	assert.Equal(t, uint64(222), r.infos[id].ProcessInst)
	r.mu.Unlock()
}

// TestRouterAnswersSubscriptionQueryAboutTargetNotAsker exercises the
// router's cached-subscription-query carve-out (spec §3's negative-caching
// note, spec §4.2 step 4): a query naming a *different* endpoint as its
// target must be answered with that endpoint's subscription state, not the
// asker's own.
func TestRouterAnswersSubscriptionQueryAboutTargetNotAsker(t *testing.T) {
	r := newTestRouter(t, RouterConfig{IDs: types.IDRange{Base: 1, End: 10}})
	r.AddAcceptor(NewInProcessAcceptor("a"))
	asker, askerID := attachClient(t, r, "a", 0)
	_, targetID := attachClient(t, r, "a", 0)
	require.NotEqual(t, askerID, targetID)

	topic := types.NewMessageID("x", "y")
	r.mu.Lock()
	r.infos[targetID].Subscribe(topic)
	r.mu.Unlock()

	query := types.NewMessage(types.MsgQrySubscrb, askerID, targetID, encodeMessageID(topic))
	asker.Send(query)

	var reply types.MessageID
	require.Eventually(t, func() bool {
		r.Update(time.Now())
		for _, msg := range asker.FetchMessages() {
			if msg.ID == types.MsgSubscribeTo || msg.ID == types.MsgNotSubTo {
				reply = msg.ID
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Equal(t, types.MsgSubscribeTo, reply, "target is subscribed; asker's own (empty) subscriptions must not leak into the answer")
}
