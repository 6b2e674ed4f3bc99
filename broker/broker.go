// Package broker implements the collaborative session relay: the TCP
// server that accepts editor-client connections, names them via a
// handshake, and routes frames between them by category (broadcast,
// host-directed request, host-directed response).
//
// The package is built the way sse.Broker and sse.SessionManager are
// built in its teacher codebase — an owned value with a mutex-guarded
// registry, one goroutine pair (reader, writer) per connection —
// generalized from HTTP/SSE push semantics to a raw, bidirectional,
// line-delimited JSON stream.
package broker

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/johnjansen/collabkit/config"
	"github.com/johnjansen/collabkit/metrics"
	"github.com/johnjansen/collabkit/wire"
)

// ErrClosed is returned by Serve calls made after Close.
var ErrClosed = errors.New("broker: closed")

// Broker owns the session registry, the host pointer, the pending-request
// table, and the id counters described in the specification's data model.
// Every field below is mutated only while mu is held; this is the single
// mutex realization of the "supervisor" the spec allows as an alternative
// to a dedicated actions-channel goroutine.
type Broker struct {
	cfg     config.Config
	logger  *zap.SugaredLogger
	metrics *metrics.Counters

	mu            sync.Mutex
	clients       map[int64]*Session
	host          *Session
	pending       map[int64]*pendingRequest
	nextClientID  int64
	nextRequestID int64
	closed        bool
	listener      net.Listener

	wg sync.WaitGroup
}

// New constructs a Broker from cfg. logger may be nil, in which case a
// no-op logger is used (useful in tests that don't care about log output).
func New(cfg config.Config, logger *zap.SugaredLogger) *Broker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Broker{
		cfg:     cfg,
		logger:  logger,
		metrics: &metrics.Counters{},
		clients: make(map[int64]*Session),
		pending: make(map[int64]*pendingRequest),
	}
}

// Metrics returns the broker's counters, for status reporting. The
// pending-request gauge is refreshed from the live registry under the
// lock immediately before the snapshot is taken, since it's a level, not
// a running total the router can just increment as it goes.
func (b *Broker) Metrics() metrics.Snapshot {
	b.mu.Lock()
	pending := int64(len(b.pending))
	b.mu.Unlock()

	b.metrics.SetPendingRequests(pending)
	return b.metrics.Snapshot()
}

// ClientCount returns the number of currently connected sessions.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// HostID returns the current host's client id and true, or (0, false) if
// no client is connected.
func (b *Broker) HostID() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.host == nil {
		return 0, false
	}
	return b.host.id, true
}

// Serve accepts connections on ln until Close is called or Accept returns
// an error; temporary Accept errors are not retried. It blocks until the listener stops producing new
// connections; existing connections continue to be served by their own
// goroutines after Serve returns.
func (b *Broker) Serve(ln net.Listener) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.listener = ln
	b.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		b.handle(conn)
	}
}

// handle registers a newly accepted connection and starts its reader and
// writer goroutines. Host election on accept (§4.3): the first client to
// be added to an empty registry becomes host immediately, independent of
// whether or when it ever sends a handshake.
func (b *Broker) handle(conn net.Conn) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}

	id := b.nextClientID
	b.nextClientID++

	s := newSession(id, conn, b.cfg.OutboxCapacity, b.cfg.MaxFrameBytes)
	s.isHost = len(b.clients) == 0
	b.clients[id] = s
	if s.isHost {
		b.host = s
	}
	b.mu.Unlock()

	b.metrics.ConnectionAccepted()
	b.logger.Debugw("client connected", "client", id, "remote_addr", s.remoteAddr, "is_host", s.isHost)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		var g errgroup.Group
		g.Go(func() error {
			s.writeLoop()
			return nil
		})
		g.Go(func() error {
			b.readLoop(s)
			return nil
		})
		_ = g.Wait()
	}()
}

// readLoop decodes frames from s until the connection fails, then drives
// teardown. Malformed frames are non-fatal (§4.1); oversize frames and I/O
// errors are fatal.
func (b *Broker) readLoop(s *Session) {
	for {
		msg, err := s.dec.DecodeMessage()
		if err != nil {
			b.handleReadError(s, err)
			if isFatal(err) {
				b.teardown(s)
				return
			}
			continue
		}
		b.route(s, msg)
	}
}

func (b *Broker) handleReadError(s *Session, err error) {
	var perr *wire.ParseError
	if errors.As(err, &perr) {
		b.metrics.ParseError()
		b.logger.Debugw("dropping malformed frame", "client", s.id, "err", err)
		return
	}
	if errors.Is(err, wire.ErrFrameTooLarge) {
		// §9 open question, resolved: send the error frame before teardown.
		s.sendError("Frame too large")
		return
	}
	if errors.Is(err, io.EOF) {
		b.logger.Debugw("client disconnected", "client", s.id)
		return
	}
	b.logger.Debugw("connection read error", "client", s.id, "err", err)
}

func isFatal(err error) bool {
	if errors.Is(err, wire.ErrFrameTooLarge) || errors.Is(err, io.EOF) {
		return true
	}
	var perr *wire.ParseError
	return !errors.As(err, &perr)
}

// teardown implements §4.3's teardown sequence atomically under the
// registry lock, ending by closing the outbox; the socket itself is closed
// by s.writeLoop once it has drained the outbox.
func (b *Broker) teardown(s *Session) {
	b.mu.Lock()

	if _, ok := b.clients[s.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, s.id)

	for reqID, p := range b.pending {
		if p.requesterID == s.id {
			p.cancel()
			delete(b.pending, reqID)
		}
	}

	var newHost *Session
	if s.isHost {
		if len(b.clients) > 0 {
			// The new host is the first session Go's map iteration yields;
			// that order is unspecified.
			for _, c := range b.clients {
				newHost = c
				break
			}
			newHost.isHost = true
			b.host = newHost
		} else {
			b.host = nil
		}
	}

	if newHost != nil {
		b.broadcastLocked(s.id, map[string]any{
			"event":   "new_host",
			"host_id": newHost.id,
			"name":    newHost.name,
		})
	}

	if s.name != "" {
		b.broadcastLocked(s.id, map[string]any{
			"event": "user_left",
			"id":    s.id,
			"name":  s.name,
		})
	}

	close(s.outbox)
	b.mu.Unlock()

	// s.writeLoop closes the socket itself once it has drained whatever was
	// queued (e.g. a final error frame) — see its doc comment.
	b.metrics.ConnectionClosed()
	b.logger.Debugw("client disconnected, torn down", "client", s.id)
}

// broadcastLocked marshals payload once and enqueues it to every client
// except excludeID. Must be called with mu held.
func (b *Broker) broadcastLocked(excludeID int64, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Errorw("failed to marshal broadcast payload", "err", err)
		return
	}
	for id, c := range b.clients {
		if id == excludeID {
			continue
		}
		if c.enqueue(body) {
			b.metrics.FrameRouted()
		} else {
			b.metrics.FrameDropped()
			b.logger.Debugw("outbox full, dropping frame", "recipient", id)
		}
	}
}

// sendDirectLocked marshals payload and enqueues it to a single recipient.
// Must be called with mu held.
func (b *Broker) sendDirectLocked(to *Session, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Errorw("failed to marshal direct payload", "err", err)
		return
	}
	if to.enqueue(body) {
		b.metrics.FrameRouted()
	} else {
		b.metrics.FrameDropped()
		b.logger.Debugw("outbox full, dropping frame", "recipient", to.id)
	}
}

// Close stops accepting new connections and tears down every live session.
// It closes each session's raw socket; the session's own reader goroutine
// observes the resulting error and drives the normal teardown path, so
// Close never duplicates §4.3's bookkeeping. Close blocks until every
// reader/writer pair has exited.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ln := b.listener

	conns := make([]net.Conn, 0, len(b.clients))
	for _, c := range b.clients {
		conns = append(conns, c.conn)
	}
	b.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	b.wg.Wait()
	return nil
}
