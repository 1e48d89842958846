package server

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// --------------------------------------------------------------------------
// Event Loop
// --------------------------------------------------------------------------

// loop is the heart of the server. Every iteration rebuilds the poll set
// from the connection intents, parks in poll(2) until something is ready,
// then dispatches: at most one accept, followed by the read/write paths of
// every ready connection. Connections flagged for closing are released at
// the end of the iteration, never while their events are being dispatched.
func (s *KVServer) loop() error {
	defer s.shutdown()

	var (
		pollFDs []unix.PollFd
		active  []*conn
	)

	for !s.stopping.Load() {
		pollFDs = pollFDs[:0]
		active = active[:0]

		// slot 0: listening socket, slot 1: wake pipe
		pollFDs = append(pollFDs,
			unix.PollFd{Fd: int32(s.listenFD), Events: unix.POLLIN},
			unix.PollFd{Fd: int32(s.wakeR), Events: unix.POLLIN},
		)

		for _, c := range s.conns {
			events := int16(unix.POLLERR)
			if c.wantRead {
				events |= unix.POLLIN
			}
			if c.wantWrite {
				events |= unix.POLLOUT
			}
			pollFDs = append(pollFDs, unix.PollFd{Fd: int32(c.fd), Events: events})
			active = append(active, c)
		}

		if _, err := unix.Poll(pollFDs, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll failed: %w", err)
		}

		if pollFDs[1].Revents != 0 {
			s.drainWakePipe()
		}
		if s.stopping.Load() {
			break
		}

		// at most one new connection per iteration keeps accept from
		// starving established connections under an accept flood
		if pollFDs[0].Revents != 0 {
			s.handleAccept()
		}

		for i, c := range active {
			revents := pollFDs[i+2].Revents

			if revents&unix.POLLIN != 0 {
				s.handleRead(c)
			}
			if revents&unix.POLLOUT != 0 && !c.wantClose {
				s.handleWrite(c)
			}

			if c.wantClose || revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				s.closeConn(c)
			}
		}
	}

	return nil
}

// handleAccept takes one pending connection off the listening socket and
// registers it in the reading state
func (s *KVServer) handleAccept() {
	fd, sa, err := s.sys.Accept(s.listenFD)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		// transient accept failures must not take the loop down
		Logger.Errorf("accept failed: %v", err)
		return
	}

	Logger.Debugf("accepted client on fd %d from %s", fd, sockaddrString(sa))
	s.conns[fd] = &conn{fd: fd, wantRead: true}
	metricConnsAccepted.Inc()
}

// closeConn releases a connection's descriptor and drops it from the registry
func (s *KVServer) closeConn(c *conn) {
	delete(s.conns, c.fd)
	if err := s.sys.Close(c.fd); err != nil {
		Logger.Warningf("close on fd %d failed: %v", c.fd, err)
	}
	metricConnsClosed.Inc()
}

// drainWakePipe empties the self-pipe so a stale byte cannot re-trigger it
func (s *KVServer) drainWakePipe() {
	var buf [16]byte
	for {
		if n, err := s.sys.Read(s.wakeR, buf[:]); n <= 0 || err != nil {
			return
		}
	}
}

// shutdown closes every descriptor the loop owns
func (s *KVServer) shutdown() {
	Logger.Infof("Shutting down, closing %d connection(s)", len(s.conns))

	for _, c := range s.conns {
		s.closeConn(c)
	}

	_ = unix.Close(s.listenFD)
	_ = unix.Close(s.wakeR)
	_ = unix.Close(s.wakeW)
	s.listenFD, s.wakeR, s.wakeW = -1, -1, -1
}
