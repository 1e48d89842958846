// Package client provides the Go client for the eKV server.
//
// A Client owns one TCP connection at a time and serializes requests over
// it; the server answers frames strictly in order, so no request ids are
// needed. Connection failures are handled transparently: the client
// reconnects, failing over round-robin across the configured endpoints,
// and retries idempotent round trips with exponential backoff.
//
// Thread-safety: all methods are safe for concurrent use, but concurrent
// callers share the single connection and serialize on it. Workloads that
// want connection-level parallelism (e.g. benchmarks) should create one
// Client per goroutine with New; everything else can share the process-wide
// instance returned by Shared.
package client
