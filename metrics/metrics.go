// Package metrics holds the broker's read-only operational counters.
// Nothing in broker/ ever branches on a metrics value; they exist purely
// for observability, the same role sse.Broker.GetSessionStats plays for
// the SSE broker it was adapted from.
package metrics

import "sync/atomic"

// Counters is a set of atomically-updated broker counters. The zero value
// is ready to use.
type Counters struct {
	connectionsAccepted int64
	connectionsClosed   int64
	framesRouted        int64
	framesDropped       int64
	requestsForwarded   int64
	requestsTimedOut    int64
	parseErrors         int64
	pendingRequests     int64
}

func (c *Counters) ConnectionAccepted() { atomic.AddInt64(&c.connectionsAccepted, 1) }
func (c *Counters) ConnectionClosed()   { atomic.AddInt64(&c.connectionsClosed, 1) }
func (c *Counters) FrameRouted()        { atomic.AddInt64(&c.framesRouted, 1) }
func (c *Counters) FrameDropped()       { atomic.AddInt64(&c.framesDropped, 1) }
func (c *Counters) RequestForwarded()   { atomic.AddInt64(&c.requestsForwarded, 1) }
func (c *Counters) RequestTimedOut()    { atomic.AddInt64(&c.requestsTimedOut, 1) }
func (c *Counters) ParseError()         { atomic.AddInt64(&c.parseErrors, 1) }

// SetPendingRequests overwrites the pending-request gauge with n, the
// registry's current outstanding-request count. Unlike the other fields
// this isn't a running total — it's a point-in-time level the broker
// refreshes under its registry lock whenever a snapshot is taken.
func (c *Counters) SetPendingRequests(n int64) { atomic.StoreInt64(&c.pendingRequests, n) }

// Snapshot is a point-in-time copy of every counter, suitable for logging
// or exposing over a status endpoint.
type Snapshot struct {
	ConnectionsAccepted int64
	ConnectionsClosed   int64
	FramesRouted        int64
	FramesDropped       int64
	RequestsForwarded   int64
	RequestsTimedOut    int64
	ParseErrors         int64
	PendingRequests     int64
}

// Snapshot reads every counter into a Snapshot value.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsAccepted: atomic.LoadInt64(&c.connectionsAccepted),
		ConnectionsClosed:   atomic.LoadInt64(&c.connectionsClosed),
		FramesRouted:        atomic.LoadInt64(&c.framesRouted),
		FramesDropped:       atomic.LoadInt64(&c.framesDropped),
		RequestsForwarded:   atomic.LoadInt64(&c.requestsForwarded),
		RequestsTimedOut:    atomic.LoadInt64(&c.requestsTimedOut),
		ParseErrors:         atomic.LoadInt64(&c.parseErrors),
		PendingRequests:     atomic.LoadInt64(&c.pendingRequests),
	}
}
