package client

import (
	"errors"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/eKV/rpc/common"
)

// --------------------------------------------------------------------------
// Client Pool
// --------------------------------------------------------------------------

// pool caches one client per endpoint set so repeated lookups from
// different goroutines share a connection instead of redialing
var pool = xsync.NewMapOf[string, *Client]()

// Shared returns the process-wide client for the given endpoints, creating
// it on first use. Concurrent callers for the same endpoints always receive
// the same instance.
func Shared(config common.ClientConfig) (*Client, error) {
	if len(config.Endpoints) == 0 {
		return nil, errors.New("client requires at least one endpoint")
	}

	key := strings.Join(config.Endpoints, ",")
	c, _ := pool.LoadOrCompute(key, func() *Client {
		// New only fails on empty endpoints, checked above
		cl, _ := New(config)
		return cl
	})
	return c, nil
}
