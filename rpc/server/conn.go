package server

import (
	"golang.org/x/sys/unix"

	"github.com/ValentinKolb/eKV/rpc/common"
)

// --------------------------------------------------------------------------
// Connection State
// --------------------------------------------------------------------------

// conn is the per-socket state owned by the event loop. A connection is in
// exactly one of three states, expressed by the intent flags: reading
// (wantRead), writing (wantWrite), or closing (wantClose). The flags drive
// which readiness events the next poll(2) call subscribes to.
type conn struct {
	fd int

	wantRead  bool
	wantWrite bool
	wantClose bool

	// incoming holds bytes read from the socket but not yet decoded into
	// complete frames. outgoing holds encoded responses not yet written.
	incoming netBuf
	outgoing netBuf
}

// --------------------------------------------------------------------------
// Read Path
// --------------------------------------------------------------------------

// handleRead runs when the connection's socket is readable. It performs one
// bounded read, decodes every complete frame now buffered, and - if that
// produced output - flips the connection to writing and immediately attempts
// the write, saving a poll round trip for the common request/response case.
func (s *KVServer) handleRead(c *conn) {
	n, err := s.sys.Read(c.fd, s.readBuf)
	if err != nil {
		if err == unix.EAGAIN {
			// spurious readiness, retry on the next event
			return
		}
		Logger.Errorf("read on fd %d failed: %v", c.fd, err)
		c.wantClose = true
		return
	}

	if n == 0 {
		if c.incoming.Len() == 0 {
			Logger.Debugf("client on fd %d disconnected", c.fd)
		} else {
			Logger.Warningf("client on fd %d closed mid-frame (%d bytes pending)", c.fd, c.incoming.Len())
		}
		c.wantClose = true
		return
	}

	metricBytesRead.Add(n)
	c.incoming.Append(s.readBuf[:n])

	// pipelining: one read may complete any number of requests
	for s.tryOneRequest(c) {
	}

	if c.wantClose {
		return
	}

	if c.outgoing.Len() > 0 {
		c.wantRead = false
		c.wantWrite = true
		s.handleWrite(c)
	}
}

// tryOneRequest decodes and serves a single request from the front of the
// incoming buffer. It reports whether it made progress; false means the
// buffer holds no complete frame (or the connection is now closing).
func (s *KVServer) tryOneRequest(c *conn) bool {
	payload, consumed, err := common.DecodeFrame(c.incoming.Bytes())
	if err != nil {
		Logger.Errorf("protocol violation on fd %d: %v", c.fd, err)
		metricProtocolErrors.Inc()
		c.wantClose = true
		return false
	}
	if consumed == 0 {
		return false
	}

	resp := s.handler(payload)

	framed, err := common.EncodeFrame(resp)
	if err != nil {
		// a handler must never produce an oversized response
		Logger.Errorf("response for fd %d rejected: %v", c.fd, err)
		c.wantClose = true
		return false
	}

	c.outgoing.Append(framed)
	c.incoming.Consume(consumed)
	metricRequestsServed.Inc()
	return true
}

// --------------------------------------------------------------------------
// Write Path
// --------------------------------------------------------------------------

// handleWrite runs when the connection's socket is writable. It performs one
// write and, once the output buffer is drained, flips the connection back to
// reading. Partial writes keep the connection in the writing state.
func (s *KVServer) handleWrite(c *conn) {
	n, err := s.sys.Write(c.fd, c.outgoing.Bytes())
	if err != nil {
		if err == unix.EAGAIN {
			// the socket buffer is full, wait for writability
			return
		}
		Logger.Errorf("write on fd %d failed: %v", c.fd, err)
		c.wantClose = true
		return
	}

	metricBytesWritten.Add(n)
	c.outgoing.Consume(n)

	if c.outgoing.Len() == 0 {
		c.wantWrite = false
		c.wantRead = true
	}
}
