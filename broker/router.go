package broker

import "time"

// broadcastEvents is the fixed set of event names that the router relays
// to every session except the sender, per the wire protocol's event
// table. Any other event is a handshake, is refused by the unnamed-sender
// guard, is a response when it carries a numeric request_id, is broadcast
// when the host sends it, or else is a host-directed request.
var broadcastEvents = map[string]bool{
	"cursor_move":    true,
	"update_content": true,
	"cursor_leave":   true,
}

// route classifies one inbound frame from s and applies the broker's
// routing policy. It holds the registry lock for its entire duration, so
// from the perspective of any other sender this is a single atomic
// supervisor step.
func (b *Broker) route(s *Session, msg map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	event, _ := msg["event"].(string)

	if event == "handshake" {
		b.handleHandshakeLocked(s, msg)
		return
	}

	if s.name == "" {
		s.sendError("Set name first!")
		return
	}

	if broadcastEvents[event] {
		msg["from_id"] = s.id
		msg["name"] = s.name
		b.broadcastLocked(s.id, msg)
		return
	}

	if reqID, ok := numericField(msg, "request_id"); ok {
		b.handleResponseLocked(reqID, msg)
		return
	}

	if s.isHost {
		// Resolves the "host sends a bare event" open question: the host is
		// the authority, so its own requests fan out like any other
		// broadcast rather than looping back to itself.
		msg["from_id"] = s.id
		msg["name"] = s.name
		b.broadcastLocked(s.id, msg)
		return
	}

	b.handleRequestLocked(s, msg)
}

// handleHandshakeLocked implements §4.2. A second handshake on an already
// named session is a no-op; the name is never mutated after it is set.
func (b *Broker) handleHandshakeLocked(s *Session, msg map[string]any) {
	if s.name != "" {
		return
	}

	name, _ := msg["name"].(string)
	if name == "" {
		s.sendError("Set name first!")
		return
	}
	s.name = name

	// Optional client-asserted host variant (§4.5): only ever takes effect
	// if no host exists, which in practice means this session's own accept
	// raced an empty registry — accept-time election already made it host.
	if claim, _ := msg["host"].(bool); claim && b.host == nil {
		s.isHost = true
		b.host = s
	}

	b.broadcastLocked(s.id, map[string]any{
		"event":   "user_joined",
		"id":      s.id,
		"name":    s.name,
		"is_host": s.isHost,
	})
}

// handleResponseLocked implements §4.4 item 4. A request id with no
// matching pending entry is dropped silently; this covers both expired
// (timed-out) requests and misbehaving senders that echo a stale id.
func (b *Broker) handleResponseLocked(reqID int64, msg map[string]any) {
	p, ok := b.pending[reqID]
	if !ok {
		b.logger.Debugw("dropping response for unknown or expired request", "request_id", reqID)
		return
	}
	p.cancel()
	delete(b.pending, reqID)

	requester, ok := b.clients[p.requesterID]
	if !ok {
		return
	}
	b.sendDirectLocked(requester, msg)
}

// handleRequestLocked implements §4.4 item 5.
func (b *Broker) handleRequestLocked(s *Session, msg map[string]any) {
	if b.host == nil {
		s.sendError("No host available")
		return
	}

	reqID := b.nextRequestID
	b.nextRequestID++

	p := &pendingRequest{requestID: reqID, requesterID: s.id}
	p.timer = time.AfterFunc(b.cfg.RequestTimeout, func() { b.timeoutRequest(reqID) })
	b.pending[reqID] = p

	msg["request_id"] = reqID
	msg["from_id"] = s.id
	b.sendDirectLocked(b.host, msg)
	b.metrics.RequestForwarded()
}

// timeoutRequest fires, under the registry lock, exactly once per request
// unless the request was already answered or the requester disconnected
// first — both of which remove the entry before this can find it.
func (b *Broker) timeoutRequest(reqID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[reqID]
	if !ok {
		return
	}
	delete(b.pending, reqID)

	requester, ok := b.clients[p.requesterID]
	if !ok {
		return
	}
	requester.sendError("Timeout waiting for host response")
	b.metrics.RequestTimedOut()
}

// numericField extracts an integer-valued JSON number field. JSON numbers
// decode to float64 via encoding/json into a map[string]any; the broker
// only ever stamps whole request ids, so an exact float64->int64
// conversion always round-trips.
func numericField(msg map[string]any, key string) (int64, bool) {
	v, ok := msg[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
