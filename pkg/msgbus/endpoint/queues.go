package endpoint

import "github.com/go-msgbus/msgbus/pkg/msgbus/types"

// Handler processes one delivered message, matching spec §4.1's
// process_one/process_all/process_everything handler argument.
type Handler func(msg types.Message)

// inboxQueue is the per-message-id FIFO backing one subscription, with a
// refcount so multiple in-process subscribers can share one underlying
// router subscription (spec §3 "Endpoint state").
type inboxQueue struct {
	messages []types.Message
	refcount int
}

// outboxEntry is one queued-but-not-yet-sent message, retried on the next
// Update when the connection refuses it (spec §4.1 "Outbox").
type outboxEntry struct {
	msg types.Message
}

func (q *inboxQueue) push(msg types.Message) {
	q.messages = append(q.messages, msg)
}

func (q *inboxQueue) popAll() []types.Message {
	out := q.messages
	q.messages = nil
	return out
}

func (q *inboxQueue) popOne() (types.Message, bool) {
	if len(q.messages) == 0 {
		return types.Message{}, false
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, true
}
