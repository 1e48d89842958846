package server

import (
	"fmt"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sys/unix"

	"github.com/ValentinKolb/eKV/rpc/common"
)

var (
	// Logger for this package
	Logger = logger.GetLogger("server")
)

// defaultReadBufferSize bounds one read(2) call when the config leaves
// ReadBufferSize unset
const defaultReadBufferSize = 64 * 1024

// --------------------------------------------------------------------------
// KV Server
// --------------------------------------------------------------------------

// KVServer owns the listening socket, the connection registry and the event
// loop. All of its state except the stop flag belongs to the loop goroutine;
// Stop is the only method safe to call concurrently.
type KVServer struct {
	config  common.ServerConfig
	handler HandleFunc
	sys     sysSocket

	listenFD int
	addr     string

	// self-pipe: Stop writes one byte to wake a loop parked in poll(2)
	wakeR, wakeW int

	conns    map[int]*conn
	readBuf  []byte
	stopping atomic.Bool
}

// NewKVServer creates a server for the given config. The handler serves
// every request; see NewEchoHandler and NewStoreHandler.
func NewKVServer(config common.ServerConfig, handler HandleFunc) *KVServer {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = defaultReadBufferSize
	}

	return &KVServer{
		config:   config,
		handler:  handler,
		sys:      unixSocket{},
		listenFD: -1,
		wakeR:    -1,
		wakeW:    -1,
		conns:    make(map[int]*conn),
		readBuf:  make([]byte, config.ReadBufferSize),
	}
}

// Listen binds the configured endpoint. It is called implicitly by Serve;
// calling it first is useful when the caller needs Addr before serving,
// e.g. after requesting an ephemeral port.
func (s *KVServer) Listen() error {
	if s.listenFD >= 0 {
		return nil
	}

	fd, err := listenSocket(s.config.Endpoint)
	if err != nil {
		return err
	}

	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("failed to create wake pipe: %w", err)
	}
	if err := unix.SetNonblock(pipe[0], true); err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(pipe[0])
		_ = unix.Close(pipe[1])
		return fmt.Errorf("failed to set O_NONBLOCK on wake pipe: %w", err)
	}

	s.listenFD = fd
	s.wakeR, s.wakeW = pipe[0], pipe[1]

	// resolve the actual address, the config may have requested port 0
	if sa, err := unix.Getsockname(fd); err == nil {
		s.addr = sockaddrString(sa)
	} else {
		s.addr = s.config.Endpoint
	}

	return nil
}

// Addr returns the address the server listens on. Valid after Listen.
func (s *KVServer) Addr() string {
	return s.addr
}

// Serve runs the event loop on the calling goroutine until Stop is called
// or the loop fails. The configuration is logged once on startup.
func (s *KVServer) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	Logger.Infof("Starting eKV server on %s", s.addr)
	Logger.Infof("%s", s.config.String())

	if s.config.MetricsEndpoint != "" {
		serveMetrics(s.config.MetricsEndpoint)
	}

	return s.loop()
}

// Stop asks the event loop to shut down. It is safe to call from any
// goroutine and returns without waiting; Serve returns once the loop has
// closed every connection.
func (s *KVServer) Stop() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	if s.wakeW >= 0 {
		_, _ = unix.Write(s.wakeW, []byte{0})
	}
}
