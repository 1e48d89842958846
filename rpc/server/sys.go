package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// --------------------------------------------------------------------------
// Syscall Abstraction for dependency injection
// --------------------------------------------------------------------------

// sysSocket abstracts the raw socket syscalls the event loop performs, so
// the connection state machine can be driven by tests without real sockets
type sysSocket interface {
	// Read reads into p from the descriptor, returning unix.EAGAIN when the
	// operation would block
	Read(fd int, p []byte) (int, error)

	// Write writes p to the descriptor, returning unix.EAGAIN when the
	// operation would block
	Write(fd int, p []byte) (int, error)

	// Accept takes one pending connection off the listening descriptor and
	// returns its descriptor already in non-blocking mode
	Accept(fd int) (int, unix.Sockaddr, error)

	// Close releases the descriptor
	Close(fd int) error
}

// unixSocket is the production sysSocket backed by golang.org/x/sys/unix
type unixSocket struct{}

func (unixSocket) Read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func (unixSocket) Write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func (unixSocket) Accept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, nil, err
	}

	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return -1, nil, fmt.Errorf("failed to set O_NONBLOCK: %w", err)
	}

	return nfd, sa, nil
}

func (unixSocket) Close(fd int) error {
	return unix.Close(fd)
}

// --------------------------------------------------------------------------
// Listening Socket Setup
// --------------------------------------------------------------------------

// listenSocket creates the bound, listening, non-blocking server socket.
// Any failure here is fatal to the whole process: no service can run
// without the listening socket.
func listenSocket(endpoint string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp4", endpoint)
	if err != nil {
		return -1, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket() failed: %w", err)
	}

	// allow fast restarts while old connections sit in TIME_WAIT
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_REUSEADDR) failed: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip := addr.IP.To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind(%s) failed: %w", endpoint, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("failed to set O_NONBLOCK: %w", err)
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen(%s) failed: %w", endpoint, err)
	}

	return fd, nil
}

// sockaddrString formats a peer address for diagnostics
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("%v:%d", a.Addr, a.Port)
	default:
		return "unknown"
	}
}
