package broker

import (
	"encoding/json"
	"net"
	"time"

	"github.com/johnjansen/collabkit/wire"
)

// Session is one accepted connection's state: identity, host flag, and the
// bounded outbox that decouples routing from the socket write. Its id is
// assigned once by the registry and never changes; its name and isHost
// fields are mutated only while the broker's registry lock is held (see
// broker.go), matching the "written only inside supervisor steps" rule.
type Session struct {
	id     int64
	name   string
	isHost bool

	conn        net.Conn
	remoteAddr  string
	connectedAt time.Time

	dec *wire.Decoder

	// outbox is the bounded, drop-newest-on-overflow queue a writer goroutine
	// drains to the socket. It is closed exactly once, during teardown.
	outbox chan []byte
}

func newSession(id int64, conn net.Conn, outboxCapacity, maxFrameBytes int) *Session {
	return &Session{
		id:          id,
		conn:        conn,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: connectedAtNow(),
		dec:         wire.NewDecoder(conn, maxFrameBytes),
		outbox:      make(chan []byte, outboxCapacity),
	}
}

// connectedAtNow exists only so tests can't trip over a direct time.Now()
// call inside struct literals elsewhere in the package; it is the single
// wall-clock read in session construction.
func connectedAtNow() time.Time { return time.Now() }

// ID returns the session's immutable client id.
func (s *Session) ID() int64 { return s.id }

// Name returns the session's handshake name, or "" before handshake.
func (s *Session) Name() string { return s.name }

// IsHost reports whether this session currently holds the host role.
func (s *Session) IsHost() bool { return s.isHost }

// enqueue attempts a non-blocking send into the outbox. It reports whether
// the frame was queued; false means the outbox was full and the frame was
// dropped for this recipient, which is never a connection-fatal condition.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case s.outbox <- frame:
		return true
	default:
		return false
	}
}

// sendError enqueues a best-effort {"event":"error"} frame. Like any other
// enqueue it never blocks and never fails the connection if the outbox is
// full.
func (s *Session) sendError(message string) {
	body, err := json.Marshal(map[string]any{"event": "error", "message": message})
	if err != nil {
		return
	}
	s.enqueue(body)
}

// writeLoop drains the outbox to the socket until the outbox is closed or a
// write fails, then closes the connection itself. Closing here — rather
// than in teardown — guarantees every frame queued before teardown (e.g. a
// final error frame explaining why the connection is being torn down) is
// written before the socket goes away, since both the write and the close
// happen in this one goroutine.
func (s *Session) writeLoop() {
	for frame := range s.outbox {
		if err := wire.EncodeFrame(s.conn, frame); err != nil {
			break
		}
	}
	_ = s.conn.Close()
}
