package server

import (
	"bytes"
	"encoding/binary"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/ValentinKolb/eKV/rpc/common"
)

// --------------------------------------------------------------------------
// Fake Socket
// --------------------------------------------------------------------------

type readResult struct {
	data []byte
	err  error
}

// fakeSocket drives the connection state machine without real descriptors.
// Read pops queued results (a result larger than the read buffer is served
// across multiple calls); Write captures bytes, optionally limited per call
// or failed from an error queue.
type fakeSocket struct {
	reads      []readResult
	written    bytes.Buffer
	writeLimit int
	writeErrs  []error
	closed     []int
}

func (f *fakeSocket) Read(fd int, p []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, unix.EAGAIN
	}

	head := &f.reads[0]
	if head.err != nil {
		err := head.err
		f.reads = f.reads[1:]
		return 0, err
	}

	n := copy(p, head.data)
	if n < len(head.data) {
		head.data = head.data[n:]
	} else {
		f.reads = f.reads[1:]
	}
	return n, nil
}

func (f *fakeSocket) Write(fd int, p []byte) (int, error) {
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			return 0, err
		}
	}

	if f.writeLimit > 0 && len(p) > f.writeLimit {
		p = p[:f.writeLimit]
	}
	f.written.Write(p)
	return len(p), nil
}

func (f *fakeSocket) Accept(fd int) (int, unix.Sockaddr, error) {
	return -1, nil, unix.EAGAIN
}

func (f *fakeSocket) Close(fd int) error {
	f.closed = append(f.closed, fd)
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTestConn(handler HandleFunc, sys sysSocket) (*KVServer, *conn) {
	s := NewKVServer(common.ServerConfig{LogLevel: "error"}, handler)
	s.sys = sys

	c := &conn{fd: 7, wantRead: true}
	s.conns[c.fd] = c
	return s, c
}

func frame(t *testing.T, payload string) []byte {
	t.Helper()
	framed, err := common.EncodeFrame([]byte(payload))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return framed
}

// --------------------------------------------------------------------------
// State Machine Tests
// --------------------------------------------------------------------------

func TestConnEchoRoundTrip(t *testing.T) {
	sys := &fakeSocket{
		reads: []readResult{{data: frame(t, "hello1")}},
	}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if !bytes.Equal(sys.written.Bytes(), frame(t, "hello1")) {
		t.Errorf("expected echoed frame, got %q", sys.written.Bytes())
	}
	if !c.wantRead || c.wantWrite || c.wantClose {
		t.Errorf("expected connection back in reading state, got %+v", c)
	}
	if c.incoming.Len() != 0 || c.outgoing.Len() != 0 {
		t.Errorf("expected drained buffers, got in=%d out=%d", c.incoming.Len(), c.outgoing.Len())
	}
}

func TestConnPipelinedRequests(t *testing.T) {
	// three requests arriving in a single read must yield three responses
	// in request order
	var in []byte
	for _, payload := range []string{"a", "b", "c"} {
		in = append(in, frame(t, payload)...)
	}
	sys := &fakeSocket{reads: []readResult{{data: in}}}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if !bytes.Equal(sys.written.Bytes(), in) {
		t.Errorf("expected all three echoes, got %q", sys.written.Bytes())
	}
}

func TestConnFrameAcrossReads(t *testing.T) {
	full := frame(t, "hello2")
	sys := &fakeSocket{
		reads: []readResult{{data: full[:3]}, {data: full[3:]}},
	}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)
	if sys.written.Len() != 0 {
		t.Fatalf("partial frame must not produce a response")
	}
	if !c.wantRead || c.wantClose {
		t.Fatalf("connection must keep reading after a partial frame")
	}

	s.handleRead(c)
	if !bytes.Equal(sys.written.Bytes(), full) {
		t.Errorf("expected echo after second read, got %q", sys.written.Bytes())
	}
}

func TestConnReadWouldBlock(t *testing.T) {
	sys := &fakeSocket{reads: []readResult{{err: unix.EAGAIN}}}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if c.wantClose || !c.wantRead {
		t.Errorf("spurious readiness must leave the connection reading")
	}
}

func TestConnEOF(t *testing.T) {
	// clean EOF: no buffered bytes
	sys := &fakeSocket{reads: []readResult{{data: nil}}}
	s, c := newTestConn(NewEchoHandler(), sys)
	s.handleRead(c)
	if !c.wantClose {
		t.Errorf("EOF must flag the connection for closing")
	}

	// EOF in the middle of a frame is flagged all the same
	sys = &fakeSocket{reads: []readResult{{data: frame(t, "hello1")[:2]}, {data: nil}}}
	s, c = newTestConn(NewEchoHandler(), sys)
	s.handleRead(c)
	s.handleRead(c)
	if !c.wantClose {
		t.Errorf("mid-frame EOF must flag the connection for closing")
	}
}

func TestConnOversizeFrame(t *testing.T) {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], common.MaxMsgSize+1)

	sys := &fakeSocket{reads: []readResult{{data: hdr[:]}}}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if !c.wantClose {
		t.Errorf("oversized frame must be fatal to the connection")
	}
	if sys.written.Len() != 0 {
		t.Errorf("no response may be written for a protocol violation")
	}
}

func TestConnPartialWrite(t *testing.T) {
	sys := &fakeSocket{
		reads:      []readResult{{data: frame(t, "hello1")}},
		writeLimit: 4,
	}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if !c.wantWrite || c.wantRead {
		t.Fatalf("partially written connection must stay in the writing state")
	}
	if c.outgoing.Len() == 0 {
		t.Fatalf("outgoing buffer must retain the unwritten remainder")
	}

	// keep dispatching writability until the buffer drains
	for i := 0; c.wantWrite; i++ {
		if i > 10 {
			t.Fatalf("write did not drain")
		}
		s.handleWrite(c)
	}

	if !bytes.Equal(sys.written.Bytes(), frame(t, "hello1")) {
		t.Errorf("expected full echo after draining, got %q", sys.written.Bytes())
	}
	if !c.wantRead {
		t.Errorf("drained connection must flip back to reading")
	}
}

func TestConnWriteWouldBlock(t *testing.T) {
	sys := &fakeSocket{
		reads:     []readResult{{data: frame(t, "hello1")}},
		writeErrs: []error{unix.EAGAIN},
	}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if c.wantClose {
		t.Fatalf("a full socket buffer is not an error")
	}
	if !c.wantWrite {
		t.Fatalf("connection must wait for writability")
	}

	s.handleWrite(c)
	if !bytes.Equal(sys.written.Bytes(), frame(t, "hello1")) {
		t.Errorf("expected echo once writable, got %q", sys.written.Bytes())
	}
}

func TestConnWriteError(t *testing.T) {
	sys := &fakeSocket{
		reads:     []readResult{{data: frame(t, "hello1")}},
		writeErrs: []error{unix.EPIPE},
	}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if !c.wantClose {
		t.Errorf("write error must flag the connection for closing")
	}
}

func TestConnReadError(t *testing.T) {
	sys := &fakeSocket{reads: []readResult{{err: unix.ECONNRESET}}}
	s, c := newTestConn(NewEchoHandler(), sys)

	s.handleRead(c)

	if !c.wantClose {
		t.Errorf("read error must flag the connection for closing")
	}
}

func TestConnLargeFrameAcrossManyReads(t *testing.T) {
	// a frame larger than the read buffer arrives in read-buffer-sized
	// slices; the echo must still come back in one piece
	payload := bytes.Repeat([]byte("z"), 3*defaultReadBufferSize+17)
	framed, err := common.EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	sys := &fakeSocket{reads: []readResult{{data: framed}}}
	s, c := newTestConn(NewEchoHandler(), sys)

	for i := 0; sys.written.Len() < len(framed); i++ {
		if i > 100 {
			t.Fatalf("echo did not complete")
		}
		s.handleRead(c)
		for c.wantWrite {
			s.handleWrite(c)
		}
	}

	if !bytes.Equal(sys.written.Bytes(), framed) {
		t.Errorf("large echo mismatch")
	}
}
