package core

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-msgbus/msgbus/pkg/msgbus/blob"
	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// RouterConfig bundles the tunables spec §4.2/§5/§6 name for one router.
type RouterConfig struct {
	// IDs is the disjoint sub-range this router allocates fresh endpoint
	// ids from (spec §3 "Identifiers").
	IDs types.IDRange

	// Password, if non-empty, requires every pending connection to answer
	// a nonce challenge before promotion (spec §4.2 step 2). The bus layer
	// only checks equality; real authentication is a higher layer's job
	// (spec §7, SUPPLEMENTED FEATURES inert-crypto note).
	Password string

	PendingHandshakeTimeout time.Duration
	PasswordRetryPeriod     time.Duration
	RecentlyDisconnectedGrace time.Duration
	FlowInfoPeriod          time.Duration

	// Name labels this router's metrics, distinguishing several routers
	// (e.g. a bridge chain) running in one process.
	Name string

	// Registerer receives this router's prometheus collectors. Nil skips
	// metrics registration (e.g. in unit tests that construct many
	// short-lived routers against the default registry).
	Registerer prometheus.Registerer
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.PendingHandshakeTimeout == 0 {
		c.PendingHandshakeTimeout = definition.DefaultPendingHandshake
	}
	if c.PasswordRetryPeriod == 0 {
		c.PasswordRetryPeriod = definition.DefaultPasswordRetry
	}
	if c.RecentlyDisconnectedGrace == 0 {
		c.RecentlyDisconnectedGrace = definition.DefaultRecentlyDisGrace
	}
	if c.FlowInfoPeriod == 0 {
		c.FlowInfoPeriod = definition.DefaultFlowInfoPeriod
	}
	if c.Name == "" {
		c.Name = "router"
	}
	if c.IDs.Empty() {
		c.IDs = types.IDRange{Base: 1, End: 1 << 32}
	}
	return c
}

// Router implements C1 (spec §4.2): the routing fabric's control plane (id
// allocation, subscription tracking, pending-connection handshake) and data
// plane (per-connection forwarding, age/hop enforcement, statistics).
// Grounded on the teacher's Transport-consuming coordination loop
// generalized from one multicast group to an arbitrary connection fan-out.
type Router struct {
	mu sync.Mutex

	conf RouterConfig
	log  types.Logger

	acceptors []Acceptor
	pending   []*pendingConnection

	nodes map[types.EndpointID]*routedNode
	infos map[types.EndpointID]*types.EndpointInfo

	subs *subscriptionTable

	recentlyDisconnected map[types.EndpointID]types.RecentlyDisconnected

	parent       Connection
	nextFreeID   types.EndpointID

	stats *routerStats
	seed  uint64

	blobs          *blob.Manipulator
	lastFlowInfoAt time.Time

	finished bool
}

// NewRouter builds a router over the given sub-range with no acceptors or
// parent uplink yet attached.
func NewRouter(conf RouterConfig, log types.Logger) *Router {
	if log == nil {
		log = definition.NewNoopLogger()
	}
	conf = conf.withDefaults()
	return &Router{
		conf:                 conf,
		log:                  log,
		nodes:                make(map[types.EndpointID]*routedNode),
		infos:                make(map[types.EndpointID]*types.EndpointInfo),
		subs:                 newSubscriptionTable(),
		recentlyDisconnected: make(map[types.EndpointID]types.RecentlyDisconnected),
		nextFreeID:           conf.IDs.Base,
		stats:                newRouterStats(conf.Registerer, conf.Name),
		blobs:                blob.NewManipulator(types.MsgBlobFragment, types.MsgBlobResend),
	}
}

// AddAcceptor installs a passive listener whose accepted connections enter
// the pending staging area (spec §4.2 "add_acceptor").
func (r *Router) AddAcceptor(a Acceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acceptors = append(r.acceptors, a)
}

// AddConnection installs a parent-router uplink: targeted messages for ids
// outside this router's own set are forwarded up it, and broadcasts are
// relayed up unless they arrived from it (spec §4.2 "add_connection").
func (r *Router) AddConnection(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parent = conn
}

// allocateID hands out the next free id in this router's sub-range, or the
// broadcast placeholder if the range is exhausted.
func (r *Router) allocateID() types.EndpointID {
	if r.conf.IDs.Empty() || !r.conf.IDs.Contains(r.nextFreeID) {
		return types.Broadcast
	}
	id := r.nextFreeID
	r.nextFreeID++
	return id
}

// UpdateMessageAge feeds one observed message age into the flow-info
// aggregator (spec §4.2 "update_message_age").
func (r *Router) UpdateMessageAge(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.recordAge(d)
}

// Stats returns the current forwarded/dropped counters, for diagnostics.
func (r *Router) Stats() (forwarded, dropped uint64) {
	return r.stats.snapshot()
}

// Update drives one maintenance-and-routing tick: accept new connections,
// service handshakes, forward fetched messages, broadcast flow-info, and
// reclaim expired bookkeeping (spec §4.2 "update").
func (r *Router) Update(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := false
	work = r.acceptPending(now) || work
	work = r.servicePending(now) || work
	work = r.forwardFromNodes(now) || work
	work = r.forwardFromParent(now) || work
	work = r.reapDisconnected(now) || work
	work = r.maybeBroadcastFlowInfo(now) || work
	work = r.blobs.Update(now) || work
	r.blobs.HandleComplete()
	return work
}

func (r *Router) acceptPending(now time.Time) bool {
	work := false
	for _, a := range r.acceptors {
		for {
			conn, ok := a.Accept()
			if !ok {
				break
			}
			r.pending = append(r.pending, newPendingConnection(conn, now))
			work = true
		}
	}
	return work
}

// servicePending drives every staged connection's handshake one step (spec
// §4.2 "Pending-connection staging").
func (r *Router) servicePending(now time.Time) bool {
	work := false
	alive := r.pending[:0:0]
	for _, p := range r.pending {
		if p.expired(now, r.conf.PendingHandshakeTimeout) {
			r.log.Warnf("pending connection on %s timed out during handshake", p.conn.Kind())
			_ = p.conn.Cleanup()
			work = true
			continue
		}
		if r.servicePendingOne(p, now) {
			work = true
			continue // promoted or dropped this tick; don't keep staging it
		}
		alive = append(alive, p)
	}
	r.pending = alive
	return work
}

// servicePendingOne returns true once p has been promoted or permanently
// dropped (so it should leave the pending list).
func (r *Router) servicePendingOne(p *pendingConnection, now time.Time) bool {
	for _, msg := range p.conn.FetchMessages() {
		switch msg.ID {
		case types.MsgRequestID:
			pre, _ := decodeIDPayload(msg.Payload)
			p.preconfigured = pre
			if r.conf.Password != "" {
				if !p.awaitingPassword {
					p.awaitingPassword = true
					r.seed++
					p.nonce = makeNonce(r.seed)
					p.lastPasswordRequestAt = now
					p.conn.Send(types.NewMessage(types.MsgReqRouterPwd, 0, 0, p.nonce))
					return false
				}
				// a repeated request-id never bypasses the password check.
				continue
			}
			r.promote(p, now)
			return true

		case types.MsgEncRouterPwd:
			if !p.awaitingPassword {
				continue
			}
			if string(msg.Payload) != r.conf.Password {
				r.log.Errorf("pending connection on %s failed password verification", p.conn.Kind())
				continue
			}
			r.promote(p, now)
			return true
		}
	}
	if p.awaitingPassword && p.passwordRetryDue(now, r.conf.PasswordRetryPeriod) {
		p.lastPasswordRequestAt = now
		p.conn.Send(types.NewMessage(types.MsgReqRouterPwd, 0, 0, p.nonce))
	}
	return false
}

// promote assigns (or confirms) an id and moves p into the routed-nodes map
// (spec §4.2 step 3).
func (r *Router) promote(p *pendingConnection, now time.Time) {
	var id types.EndpointID
	if p.preconfigured.IsValid() {
		if _, taken := r.nodes[p.preconfigured]; !taken {
			id = p.preconfigured
			p.conn.Send(types.NewMessage(types.MsgConfirmID, 0, id, idPayload(id)))
		}
	}
	if !id.IsValid() {
		id = r.allocateID()
		p.conn.Send(types.NewMessage(types.MsgAssignID, 0, id, idPayload(id)))
	}
	if !id.IsValid() {
		r.log.Errorf("router id range exhausted, dropping pending connection on %s", p.conn.Kind())
		_ = p.conn.Cleanup()
		return
	}
	r.nodes[id] = newRoutedNode(id, p.conn)
	r.infos[id] = types.NewEndpointInfo(id)
	r.infos[id].Touch(now)
	delete(r.recentlyDisconnected, id)
}

// forwardFromNodes fetches and forwards messages from every routed node. A
// node is torn down only once its liveness deadline elapses with no
// activity (spec §3 "liveness deadline", default 60s) or on an explicit
// goodbye, not merely because its connection is transiently unusable: a
// short outage (spec §8 scenario 6) must let the same node resume once the
// connection recovers, without forcing the endpoint to re-acquire an id.
func (r *Router) forwardFromNodes(now time.Time) bool {
	work := false
	for id, node := range r.nodes {
		if info := r.infos[id]; info != nil && info.Expired(now) {
			r.teardownNode(id, now)
			work = true
			continue
		}
		if !node.conn.IsUsable() {
			continue
		}
		msgs := node.conn.FetchMessages()
		if len(msgs) == 0 {
			continue
		}
		r.infos[id].Touch(now)
		for _, msg := range msgs {
			r.forwardOne(node, msg, now)
		}
		work = true
	}
	return work
}

func (r *Router) forwardFromParent(now time.Time) bool {
	if r.parent == nil || !r.parent.IsUsable() {
		return false
	}
	msgs := r.parent.FetchMessages()
	if len(msgs) == 0 {
		return false
	}
	for _, msg := range msgs {
		r.forwardOne(nil, msg, now)
	}
	return true
}

// teardownNode removes a gone endpoint: drops its routed-node entry, its
// subscriptions, and stages a recently-disconnected grace entry so late
// in-flight messages for it are dropped silently (spec §4.2 "Subscription
// table").
func (r *Router) teardownNode(id types.EndpointID, now time.Time) {
	delete(r.nodes, id)
	delete(r.infos, id)
	r.subs.removeEndpoint(id)
	r.recentlyDisconnected[id] = types.RecentlyDisconnected{
		ID:    id,
		Until: now.Add(r.conf.RecentlyDisconnectedGrace),
	}
}

func (r *Router) reapDisconnected(now time.Time) bool {
	work := false
	for id, entry := range r.recentlyDisconnected {
		if entry.Expired(now) {
			delete(r.recentlyDisconnected, id)
			work = true
		}
	}
	return work
}

// maybeBroadcastFlowInfo emits the periodic flow-info broadcast carrying
// the observed average message age (spec §4.2 "Statistics and flow info").
func (r *Router) maybeBroadcastFlowInfo(now time.Time) bool {
	if r.lastFlowInfoAt.IsZero() {
		r.lastFlowInfoAt = now
	}
	if now.Sub(r.lastFlowInfoAt) < r.conf.FlowInfoPeriod {
		return false
	}
	r.lastFlowInfoAt = now
	payload := idPayload(types.EndpointID(r.stats.averageAgeMs()))
	msg := types.NewMessage(types.MsgFlowInfo, 0, types.Broadcast, payload)
	r.broadcastTo(nil, msg)
	return true
}

// Finish says goodbye on every connection and closes every acceptor (spec
// §4.2 "finish"). Each routed node's connection is cleaned up right after
// its goodbye is sent; messages still queued for forwarding are not drained
// first.
func (r *Router) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	bye := types.NewMessage(types.MsgByeByeRouter, 0, types.Broadcast, nil)
	for _, node := range r.nodes {
		node.conn.Send(bye)
		_ = node.conn.Cleanup()
	}
	if r.parent != nil {
		r.parent.Send(bye)
	}
	for _, a := range r.acceptors {
		_ = a.Close()
	}
	for _, p := range r.pending {
		_ = p.conn.Cleanup()
	}
}
