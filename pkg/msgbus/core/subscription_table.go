package core

import (
	"sort"
	"sync"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// subscriptionTable is keyed by (endpoint_id, message_id) (spec §4.2
// "Subscription table"). It is queried from the router's forwarding tick, so
// it carries its own lock rather than relying on the router's per-tick
// single-ownership guarantee.
type subscriptionTable struct {
	mu   sync.RWMutex
	byID map[types.MessageID]map[types.EndpointID]bool
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{byID: make(map[types.MessageID]map[types.EndpointID]bool)}
}

func (t *subscriptionTable) subscribe(ep types.EndpointID, msg types.MessageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byID[msg]
	if !ok {
		set = make(map[types.EndpointID]bool)
		t.byID[msg] = set
	}
	set[ep] = true
}

func (t *subscriptionTable) unsubscribe(ep types.EndpointID, msg types.MessageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byID[msg]
	if !ok {
		return
	}
	delete(set, ep)
	if len(set) == 0 {
		delete(t.byID, msg)
	}
}

// removeEndpoint drops every subscription held by ep, used on teardown.
func (t *subscriptionTable) removeEndpoint(ep types.EndpointID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for msg, set := range t.byID {
		delete(set, ep)
		if len(set) == 0 {
			delete(t.byID, msg)
		}
	}
}

// subscribers returns the subscribed endpoint ids for msg in ascending
// numeric order, matching spec §4.2's deterministic broadcast tie-break.
func (t *subscriptionTable) subscribers(msg types.MessageID) []types.EndpointID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.byID[msg]
	if !ok {
		return nil
	}
	out := make([]types.EndpointID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
