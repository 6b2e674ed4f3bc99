package broker

import "time"

// pendingRequest is the broker's bookkeeping for one outstanding
// host-directed request. It is only ever created, read, or destroyed while
// the registry lock is held; its timer callback re-acquires that lock
// before touching broker state, so the timer body never runs as a bare
// goroutine racing the router.
type pendingRequest struct {
	requestID   int64
	requesterID int64
	timer       *time.Timer
}

// cancel stops the pending request's timer. Per time.Timer.Stop's
// documented behavior this does not guarantee the timer's function isn't
// already executing; callers always remove the entry from Broker.pending
// in the same locked step, so a timer that fires concurrently finds
// nothing to act on once it acquires the lock.
func (p *pendingRequest) cancel() {
	p.timer.Stop()
}
