package client

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/ValentinKolb/eKV/rpc/common"
)

var (
	// Logger for this package
	Logger = logger.GetLogger("client")
)

const (
	defaultTimeoutSecond = 5
	defaultRetryCount    = 3

	// retryBaseDelay is doubled per attempt, plus up to 100% jitter
	retryBaseDelay = 50 * time.Millisecond
)

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Client is a blocking, framed protocol client. The zero value is not
// usable; create instances with New or Shared.
type Client struct {
	config common.ClientConfig

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	next   int
}

// New creates a client for the given endpoints. No connection is made until
// the first request.
func New(config common.ClientConfig) (*Client, error) {
	if len(config.Endpoints) == 0 {
		return nil, errors.New("client requires at least one endpoint")
	}
	if config.TimeoutSecond <= 0 {
		config.TimeoutSecond = defaultTimeoutSecond
	}
	if config.RetryCount <= 0 {
		config.RetryCount = defaultRetryCount
	}

	return &Client{config: config}, nil
}

// Close tears down the connection. The client stays usable and will
// reconnect on the next request.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

func (c *Client) timeout() time.Duration {
	return time.Duration(c.config.TimeoutSecond) * time.Second
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

// connectLocked establishes a connection if none exists, trying every
// configured endpoint round-robin before giving up
func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}

	var lastErr error
	for i := 0; i < len(c.config.Endpoints); i++ {
		endpoint := c.config.Endpoints[c.next%len(c.config.Endpoints)]
		c.next++

		conn, err := net.DialTimeout("tcp", endpoint, c.timeout())
		if err != nil {
			Logger.Warningf("failed to connect to %s: %v", endpoint, err)
			lastErr = err
			continue
		}

		Logger.Debugf("connected to %s", endpoint)
		c.conn = conn
		c.reader = bufio.NewReader(conn)
		return nil
	}

	return fmt.Errorf("no endpoint reachable: %w", lastErr)
}

// dropLocked discards the connection after a failure so the next request
// starts fresh
func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// --------------------------------------------------------------------------
// Framed Round Trips
// --------------------------------------------------------------------------

// roundTripLocked sends one framed payload and reads one framed response
func (c *Client) roundTripLocked(framed []byte) ([]byte, error) {
	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.timeout()))

	if _, err := c.conn.Write(framed); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	resp, err := c.readFrameLocked()
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	return resp, nil
}

// readFrameLocked reads exactly one frame off the connection
func (c *Client) readFrameLocked() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.reader, hdr[:]); err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	length := binary.LittleEndian.Uint32(hdr[:])
	if length > common.MaxMsgSize {
		return nil, common.ErrMsgTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return payload, nil
}

// withRetry performs a round trip, retrying transport failures with
// exponential backoff and jitter. Protocol violations are permanent and
// returned immediately.
func (c *Client) withRetry(payload []byte) ([]byte, error) {
	framed, err := common.EncodeFrame(payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(delay)))
			Logger.Warningf("retrying in %v (attempt %d/%d) after: %v",
				delay, attempt, c.config.RetryCount, lastErr)
			time.Sleep(delay)
		}

		resp, err := c.roundTripLocked(framed)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, common.ErrMsgTooLarge) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("request failed after %d attempt(s): %w",
		c.config.RetryCount+1, lastErr)
}

// --------------------------------------------------------------------------
// Raw API
// --------------------------------------------------------------------------

// Echo sends a raw payload and returns the server's raw response payload.
// Against a server running the echo handler the response equals the request;
// it is primarily useful for framing-layer diagnostics and benchmarks.
func (c *Client) Echo(payload []byte) ([]byte, error) {
	return c.withRetry(payload)
}

// Do sends a command as a string list and decodes the status response
func (c *Client) Do(args ...string) (common.Status, []byte, error) {
	req, err := common.AppendRequest(nil, args...)
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.withRetry(req)
	if err != nil {
		return 0, nil, err
	}
	return common.ParseResponse(resp)
}

// --------------------------------------------------------------------------
// Typed Commands
// --------------------------------------------------------------------------

// Set stores value under key, overwriting any previous value
func (c *Client) Set(key string, value []byte) error {
	status, body, err := c.Do("set", key, string(value))
	if err != nil {
		return err
	}
	if status != common.StatusOK {
		return fmt.Errorf("set rejected: %s", body)
	}
	return nil
}

// Get retrieves the value for key. The second return value reports whether
// the key exists.
func (c *Client) Get(key string) ([]byte, bool, error) {
	status, body, err := c.Do("get", key)
	if err != nil {
		return nil, false, err
	}

	switch status {
	case common.StatusOK:
		return body, true, nil
	case common.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("get rejected: %s", body)
	}
}

// Delete removes key and reports whether it existed
func (c *Client) Delete(key string) (bool, error) {
	status, body, err := c.Do("del", key)
	if err != nil {
		return false, err
	}

	switch status {
	case common.StatusOK:
		return true, nil
	case common.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("del rejected: %s", body)
	}
}

// Has reports whether key exists
func (c *Client) Has(key string) (bool, error) {
	status, body, err := c.Do("has", key)
	if err != nil {
		return false, err
	}
	if status != common.StatusOK {
		return false, fmt.Errorf("has rejected: %s", body)
	}
	return string(body) == "1", nil
}

// Len returns the number of keys in the store
func (c *Client) Len() (int, error) {
	status, body, err := c.Do("len")
	if err != nil {
		return 0, err
	}
	if status != common.StatusOK {
		return 0, fmt.Errorf("len rejected: %s", body)
	}
	return strconv.Atoi(string(body))
}

// Ping checks liveness. With an empty msg the server answers "pong",
// otherwise it returns msg.
func (c *Client) Ping(msg string) (string, error) {
	var (
		status common.Status
		body   []byte
		err    error
	)
	if msg == "" {
		status, body, err = c.Do("ping")
	} else {
		status, body, err = c.Do("ping", msg)
	}
	if err != nil {
		return "", err
	}
	if status != common.StatusOK {
		return "", fmt.Errorf("ping rejected: %s", body)
	}
	return string(body), nil
}

// --------------------------------------------------------------------------
// Pipelining
// --------------------------------------------------------------------------

// Result is the outcome of one pipelined command
type Result struct {
	Status common.Status
	Body   []byte
}

// Pipeline writes all requests back to back before reading any response,
// trading latency for throughput. Responses arrive in request order.
// Pipelines are not retried: a transport failure mid-stream leaves it
// unknown which commands the server executed.
func (c *Client) Pipeline(requests [][]string) ([]Result, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	var buf []byte
	for _, args := range requests {
		payload, err := common.AppendRequest(nil, args...)
		if err != nil {
			return nil, err
		}
		if buf, err = common.AppendFrame(buf, payload); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.timeout()))

	if _, err := c.conn.Write(buf); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	results := make([]Result, 0, len(requests))
	for range requests {
		resp, err := c.readFrameLocked()
		if err != nil {
			c.dropLocked()
			return nil, err
		}

		status, body, err := common.ParseResponse(resp)
		if err != nil {
			c.dropLocked()
			return nil, err
		}
		results = append(results, Result{Status: status, Body: body})
	}

	return results, nil
}
