// Package endpoint implements the endpoint state machine (spec §4.1, C2):
// identity acquisition, special-message dispatch, outbox/inbox queues, and
// the public post/broadcast/subscribe/process/update contract. It is
// grounded on the teacher library's Peer type (pkg/mcast/core/peer.go) for
// the overall shape — mutex-guarded struct, an update/poll loop driven by
// the owner — generalized from one replicated
// peer to one bus-attached endpoint.
package endpoint

import (
	"time"

	"github.com/looplab/fsm"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// Identity states named by spec §4.1.
const (
	StateUnconfigured          = "unconfigured"
	StateRequesting            = "requesting"
	StateAssignedByRouter      = "assigned_by_router"
	StatePreconfiguredAnnounce = "preconfigured_announced"
	StateUsable                = "usable"
)

// Identity events driving the fsm transitions.
const (
	evRequestTimeout = "request_timeout"
	evAssigned       = "assigned"
	evConfirmed      = "confirmed"
	evReset          = "reset"
)

// identity wraps a looplab/fsm.FSM with the endpoint's id bookkeeping. It is
// not safe for concurrent use; callers serialize through Endpoint's own
// mutex.
type identity struct {
	machine      *fsm.FSM
	id           types.EndpointID
	preconfigured types.EndpointID
	lastRequestAt time.Time
}

// newIdentity builds the identity state machine. It always starts
// unconfigured; a valid preconfigured id is sent as the payload of the
// request-id message and becomes the endpoint's id once the router confirms
// it.
func newIdentity(preconfigured types.EndpointID) *identity {
	it := &identity{preconfigured: preconfigured}

	initial := StateUnconfigured

	it.machine = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: evRequestTimeout, Src: []string{StateUnconfigured}, Dst: StateRequesting},
			{Name: evAssigned, Src: []string{StateUnconfigured, StateRequesting}, Dst: StateAssignedByRouter},
			{Name: evConfirmed, Src: []string{StateUnconfigured, StateRequesting}, Dst: StatePreconfiguredAnnounce},
			{Name: evReset, Src: []string{StateAssignedByRouter, StatePreconfiguredAnnounce, StateUsable}, Dst: StateUnconfigured},
		},
		fsm.Callbacks{
			"enter_" + StateAssignedByRouter:      func(_ *fsm.Event) {},
			"enter_" + StatePreconfiguredAnnounce: func(_ *fsm.Event) {},
		},
	)
	return it
}

// Preconfigured returns the id this endpoint was constructed with, or the
// broadcast placeholder if none was configured.
func (it *identity) Preconfigured() types.EndpointID {
	return it.preconfigured
}

// HasID reports whether the endpoint currently holds a usable id.
func (it *identity) HasID() bool {
	return it.id.IsValid()
}

// ID returns the current id, or the broadcast placeholder if none assigned.
func (it *identity) ID() types.EndpointID {
	return it.id
}

// ReadyToRequest reports whether a request-id is due while the machine is
// unconfigured or still requesting: at once if none has been sent since
// construction or the last Reset, otherwise once the no-id timeout has
// elapsed since the last request.
func (it *identity) ReadyToRequest(now time.Time, noIDTimeout time.Duration) bool {
	if s := it.machine.Current(); s != StateUnconfigured && s != StateRequesting {
		return false
	}
	if it.lastRequestAt.IsZero() {
		return true
	}
	return now.Sub(it.lastRequestAt) >= noIDTimeout
}

// MarkRequested transitions to requesting and records the request time.
func (it *identity) MarkRequested(now time.Time) {
	_ = it.machine.Event(evRequestTimeout)
	it.lastRequestAt = now
}

// AssignFromRouter accepts a router-allocated id (spec: "assign-id").
func (it *identity) AssignFromRouter(id types.EndpointID) {
	it.id = id
	_ = it.machine.Event(evAssigned)
}

// ConfirmPreconfigured accepts the router's confirmation of a preconfigured
// id. A mismatched confirmation (different id than requested) is rejected.
func (it *identity) ConfirmPreconfigured(id types.EndpointID) bool {
	if id != it.preconfigured {
		return false
	}
	it.id = id
	_ = it.machine.Event(evConfirmed)
	return true
}

// MarkUsable moves either assigned state to usable; dispatch calls it as
// soon as the router assigns or confirms the id.
func (it *identity) MarkUsable() {
	if it.machine.Current() == StateAssignedByRouter || it.machine.Current() == StatePreconfiguredAnnounce {
		it.machine.SetState(StateUsable)
	}
}

// Reset returns the machine to unconfigured and clears a router-assigned id
// (a preconfigured id is kept), so that the next Update requests an id
// again.
func (it *identity) Reset() {
	if it.machine.Current() == StateUnconfigured {
		return
	}
	_ = it.machine.Event(evReset)
	if !it.preconfigured.IsValid() {
		it.id = 0
	}
	it.lastRequestAt = time.Time{}
}

// State exposes the current fsm state for diagnostics and tests.
func (it *identity) State() string {
	return it.machine.Current()
}
