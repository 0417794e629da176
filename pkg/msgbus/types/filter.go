package types

import "sync"

// MessageFilter is a message-type firewall: an allow-list and a block-list
// of message ids, guarded by its own short-lived mutex so a routed node's
// filter can be updated concurrently with the router's forwarding tick
// (spec §3 "Routed node", §5 "Shared-resource policy").
type MessageFilter struct {
	mu        sync.Mutex
	allowList map[MessageID]bool
	blockList map[MessageID]bool
}

// NewMessageFilter returns a filter that admits everything by default.
func NewMessageFilter() *MessageFilter {
	return &MessageFilter{
		allowList: make(map[MessageID]bool),
		blockList: make(map[MessageID]bool),
	}
}

// Admits reports whether id may pass: admitted when the allow-list is
// empty or contains id, and the block-list does not contain id.
func (f *MessageFilter) Admits(id MessageID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockList[id] {
		return false
	}
	if len(f.allowList) == 0 {
		return true
	}
	return f.allowList[id]
}

// Allow adds ids to the allow-list.
func (f *MessageFilter) Allow(ids ...MessageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.allowList[id] = true
	}
}

// Block adds ids to the block-list.
func (f *MessageFilter) Block(ids ...MessageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.blockList[id] = true
	}
}

// ClearAllow empties the allow-list.
func (f *MessageFilter) ClearAllow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowList = make(map[MessageID]bool)
}

// ClearBlock empties the block-list.
func (f *MessageFilter) ClearBlock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockList = make(map[MessageID]bool)
}
