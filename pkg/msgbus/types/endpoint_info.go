package types

import "time"

// DefaultLivenessTimeout is how long a router waits without any activity
// from an attached endpoint before it is considered gone (spec §3).
const DefaultLivenessTimeout = 60 * time.Second

// EndpointInfo is the router's view of one attached endpoint: its
// subscriptions, a negative cache of known-unsubscribed ids, and liveness
// bookkeeping (spec §3 "Router's view of each attached endpoint").
type EndpointInfo struct {
	ID EndpointID

	// ProcessInst is the fingerprint of the last still-alive beacon's
	// process_instance_id this endpoint reported, used to detect that an
	// endpoint claiming this id is a fresh process (relaunch) rather than
	// the same live one. Zero means "not yet observed".
	ProcessInst uint64

	Subscribed   map[MessageID]bool
	Unsubscribed map[MessageID]bool

	LastActivity time.Time
	Deadline     time.Duration
}

// NewEndpointInfo builds an EndpointInfo with the default liveness
// deadline and empty subscription sets.
func NewEndpointInfo(id EndpointID) *EndpointInfo {
	return &EndpointInfo{
		ID:           id,
		Subscribed:   make(map[MessageID]bool),
		Unsubscribed: make(map[MessageID]bool),
		Deadline:     DefaultLivenessTimeout,
		LastActivity: time.Now(),
	}
}

// Touch records activity, resetting the liveness deadline.
func (e *EndpointInfo) Touch(now time.Time) {
	e.LastActivity = now
}

// Expired reports whether this endpoint has been silent past its deadline.
func (e *EndpointInfo) Expired(now time.Time) bool {
	return now.Sub(e.LastActivity) > e.Deadline
}

// ObserveProcessInstance records fp as the endpoint's current process
// instance fingerprint and reports whether it differs from the
// previously-known one, i.e. the endpoint holding this id is a relaunched
// process rather than the one the router already knew about (spec §3
// "used to detect re-launch of an endpoint with the same assigned id"). A
// zero previous value means "not yet observed" and is never a relaunch.
func (e *EndpointInfo) ObserveProcessInstance(fp uint64) bool {
	relaunched := e.ProcessInst != 0 && e.ProcessInst != fp
	e.ProcessInst = fp
	return relaunched
}

// Subscribe marks msg as subscribed and clears any negative cache entry.
func (e *EndpointInfo) Subscribe(msg MessageID) {
	e.Subscribed[msg] = true
	delete(e.Unsubscribed, msg)
}

// Unsubscribe clears the subscription and records a negative-cache entry so
// that a subsequent "subscriber query" can answer not-subscribed without
// re-asking the endpoint.
func (e *EndpointInfo) Unsubscribe(msg MessageID) {
	delete(e.Subscribed, msg)
	e.Unsubscribed[msg] = true
}

// IsSubscribed reports whether this endpoint currently subscribes to msg.
func (e *EndpointInfo) IsSubscribed(msg MessageID) bool {
	return e.Subscribed[msg]
}

// SubscriptionList returns the subscribed ids, used to answer a
// subscription query (spec §4.1).
func (e *EndpointInfo) SubscriptionList() []MessageID {
	out := make([]MessageID, 0, len(e.Subscribed))
	for id := range e.Subscribed {
		out = append(out, id)
	}
	return out
}

// DisconnectGrace is how long a router remembers a just-disconnected
// endpoint id so that late in-flight messages for it are dropped silently
// instead of triggering a (now meaningless) forwarding attempt.
const DisconnectGrace = 60 * time.Second

// RecentlyDisconnected tracks an endpoint id that left the router's routed
// node set, together with the deadline past which the grace entry itself
// expires.
type RecentlyDisconnected struct {
	ID       EndpointID
	Until    time.Time
}

// Expired reports whether the grace window for this entry has elapsed.
func (r RecentlyDisconnected) Expired(now time.Time) bool {
	return now.After(r.Until)
}
