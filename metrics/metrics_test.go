package metrics

import "testing"

func TestCountersSnapshot(t *testing.T) {
	var c Counters

	c.ConnectionAccepted()
	c.ConnectionAccepted()
	c.ConnectionClosed()
	c.FrameRouted()
	c.FrameDropped()
	c.RequestForwarded()
	c.RequestTimedOut()
	c.ParseError()
	c.SetPendingRequests(3)

	snap := c.Snapshot()
	want := Snapshot{
		ConnectionsAccepted: 2,
		ConnectionsClosed:   1,
		FramesRouted:        1,
		FramesDropped:       1,
		RequestsForwarded:   1,
		RequestsTimedOut:    1,
		ParseErrors:         1,
		PendingRequests:     3,
	}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}
}

func TestSetPendingRequestsOverwritesRatherThanAccumulates(t *testing.T) {
	var c Counters

	c.SetPendingRequests(5)
	c.SetPendingRequests(2)

	if got := c.Snapshot().PendingRequests; got != 2 {
		t.Errorf("PendingRequests = %d, want 2", got)
	}
}
