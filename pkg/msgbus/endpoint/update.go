package endpoint

import (
	"encoding/binary"
	"time"

	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

// Update runs one iteration of the endpoint state machine (spec §4.1
// "update"): drives identity acquisition, drains the outbox, fetches and
// dispatches inbound frames, and services the BLOB manipulator. It returns
// whether any forward progress was made (spec §5 "work-done flag").
func (e *Endpoint) Update(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	work := false
	work = e.updateConnectionState(now) || work
	work = e.updateConn() || work
	work = e.driveIdentity(now) || work
	work = e.drainOutbox() || work
	work = e.fetchAndDispatch() || work
	work = e.maybeAnnounce(now) || work
	work = e.blobs.Update(now) || work
	work = e.blobs.ProcessOutgoing(e.sendBlobFragment, e.conn.MaxDataSize(), e.blobBatchSize()) || work
	work = e.blobs.CheckResends(now, e.sendBlobFragment) || work
	e.blobs.HandleComplete()
	return work
}

func (e *Endpoint) sendBlobFragment(msg types.Message) bool {
	return e.conn.Send(msg)
}

// blobBatchSize implements spec §4.3's pacing knob: more fragments per tick
// when observed average age is low, fewer when it's high (spec §9 "flow-info
// feedback loop"). The size follows from the latest average age alone; no
// state is kept between calls and there is no hysteresis, so an average
// moving back and forth across one threshold changes the size each time.
func (e *Endpoint) blobBatchSize() int {
	const (
		lowAgeMs  = 50
		highAgeMs = 500
	)
	switch {
	case e.avgAgeMs <= lowAgeMs:
		return 16
	case e.avgAgeMs >= highAgeMs:
		return 1
	default:
		return 4
	}
}

func (e *Endpoint) updateConn() bool {
	return e.conn.Update()
}

// updateConnectionState detects transitions in the underlying connection's
// usability and emits connection_established/connection_lost exactly once
// per transition (spec §8 scenario 6).
func (e *Endpoint) updateConnectionState(now time.Time) bool {
	usable := e.conn.IsUsable()
	switch {
	case usable && !e.hadWorkingConn:
		e.hadWorkingConn = true
		e.lastAliveAt = time.Time{} // re-announce the id on the new connection
		e.signals.emit(Signal{Kind: SignalConnectionEstablished, HasID: e.id.HasID(), ID: e.id.ID()})
		return true
	case !usable && e.hadWorkingConn:
		e.hadWorkingConn = false
		e.handleConnectionLost()
		return true
	}
	return false
}

// handleConnectionLost keeps the endpoint's id and outbox, so that after
// recovery the same routed node resumes and queued messages are sent.
func (e *Endpoint) handleConnectionLost() {
	e.signals.emit(Signal{Kind: SignalConnectionLost})
}

// driveIdentity sends request-id whenever identity.ReadyToRequest says one
// is due (spec §4.1 "Identity acquisition").
func (e *Endpoint) driveIdentity(now time.Time) bool {
	if !e.id.ReadyToRequest(now, e.conf.NoIDTimeout) {
		return false
	}
	e.id.MarkRequested(now)
	var payload []byte
	if pre := e.id.Preconfigured(); pre.IsValid() {
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(pre))
	}
	e.conn.Send(types.NewMessage(types.MsgRequestID, 0, 0, payload))
	return true
}

// maybeAnnounce emits announce-id once the endpoint has an id, again after
// each re-established connection, and still-alive on the configured period
// in between.
func (e *Endpoint) maybeAnnounce(now time.Time) bool {
	if !e.id.HasID() {
		return false
	}
	if e.lastAliveAt.IsZero() {
		e.lastAliveAt = now
		idBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(idBuf, uint64(e.id.ID()))
		e.conn.Send(types.NewMessage(types.MsgAnnounceID, e.id.ID(), 0, idBuf))
		return true
	}
	if now.Sub(e.lastAliveAt) >= e.conf.AliveNotifyPeriod {
		e.lastAliveAt = now
		msg := types.NewMessage(types.MsgStillAlive, e.id.ID(), 0, nil)
		msg.SequenceNo = e.processInstanceID.Fingerprint()
		e.conn.Send(msg)
		return true
	}
	return false
}

func (e *Endpoint) drainOutbox() bool {
	if len(e.outbox) == 0 || !e.id.HasID() {
		return false
	}
	pending := e.outbox[:0:0]
	work := false
	for _, entry := range e.outbox {
		if e.conn.Send(entry.msg) {
			work = true
			continue
		}
		pending = append(pending, entry)
	}
	e.outbox = pending
	return work
}

func (e *Endpoint) fetchAndDispatch() bool {
	msgs := e.conn.FetchMessages()
	if len(msgs) == 0 {
		return false
	}
	for _, msg := range msgs {
		if msg.ExceedsHopCeiling() {
			continue
		}
		if msg.ID.IsSpecial() {
			if e.dispatchSpecial(msg) {
				continue
			}
		}
		q, ok := e.inbox[msg.ID]
		if !ok {
			continue
		}
		q.push(msg)
	}
	return true
}
