// Package server implements the eKV network server: a single-threaded,
// non-blocking event loop that multiplexes every client connection over one
// poll(2) call per iteration.
//
// Each connection carries three readiness intents (read, write, close), an
// input buffer of bytes not yet decoded into frames, and an output buffer of
// encoded bytes not yet written. The loop polls all connection descriptors
// plus the listening socket, dispatches readiness events into the
// connection's read and write paths, and releases closing connections at
// the end of the iteration.
//
// Exactly one connection's handler runs at a time, to completion, before
// control returns to the poller. No socket operation blocks: a would-block
// result defers work to a future readiness event instead of suspending the
// loop. Because of this the registered HandleFunc may touch shared state
// (in particular a lib/store.Store) without any locking - but it must also
// never block, or every other connection stalls with it.
package server
