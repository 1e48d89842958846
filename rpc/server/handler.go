package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/eKV/lib/store"
	"github.com/ValentinKolb/eKV/rpc/common"
)

// --------------------------------------------------------------------------
// Request Handler
// --------------------------------------------------------------------------

// HandleFunc serves one request payload and returns the response payload.
// It runs on the event-loop goroutine and therefore must not block; since
// the loop is single-threaded, it may access shared state without locking.
type HandleFunc func(req []byte) []byte

// NewEchoHandler returns a handler that echoes every request payload back
// unchanged. It is the diagnostic handler: useful for latency measurements
// and for exercising the framing layer in isolation.
func NewEchoHandler() HandleFunc {
	return func(req []byte) []byte {
		return req
	}
}

// NewStoreHandler returns a handler that maps string-list commands onto the
// given store:
//
//	SET key value   store the value under key (overwrites)
//	GET key         return the value, or not-found
//	DEL key         remove the key, not-found if absent
//	HAS key         return "1" or "0"
//	LEN             return the number of keys
//	PING [msg]      return msg, or "pong"
//	ECHO msg        return msg verbatim
//
// Command names are case-insensitive. A request that cannot be parsed, names
// an unknown command or carries the wrong number of arguments yields an
// error response; the connection stays usable.
func NewStoreHandler(s *store.Store) HandleFunc {
	return func(req []byte) []byte {
		args, err := common.ParseRequest(req)
		if err != nil {
			return errResponse(err.Error())
		}
		if len(args) == 0 {
			return errResponse("empty command")
		}

		cmd := strings.ToLower(string(args[0]))
		switch cmd {
		case "set":
			if len(args) != 3 {
				return arityError(cmd)
			}
			s.Set(string(args[1]), args[2])
			return okResponse(nil)

		case "get":
			if len(args) != 2 {
				return arityError(cmd)
			}
			value, ok := s.Get(string(args[1]))
			if !ok {
				return common.AppendResponse(nil, common.StatusNotFound, nil)
			}
			return okResponse(value)

		case "del":
			if len(args) != 2 {
				return arityError(cmd)
			}
			if !s.Delete(string(args[1])) {
				return common.AppendResponse(nil, common.StatusNotFound, nil)
			}
			return okResponse(nil)

		case "has":
			if len(args) != 2 {
				return arityError(cmd)
			}
			if s.Has(string(args[1])) {
				return okResponse([]byte("1"))
			}
			return okResponse([]byte("0"))

		case "len":
			if len(args) != 1 {
				return arityError(cmd)
			}
			return okResponse([]byte(strconv.Itoa(s.Len())))

		case "ping":
			if len(args) > 2 {
				return arityError(cmd)
			}
			if len(args) == 2 {
				return okResponse(args[1])
			}
			return okResponse([]byte("pong"))

		case "echo":
			if len(args) != 2 {
				return arityError(cmd)
			}
			return okResponse(args[1])

		default:
			return errResponse(fmt.Sprintf("unknown command '%s'", cmd))
		}
	}
}

// --------------------------------------------------------------------------
// Response Helpers
// --------------------------------------------------------------------------

func okResponse(body []byte) []byte {
	return common.AppendResponse(nil, common.StatusOK, body)
}

func errResponse(msg string) []byte {
	return common.AppendResponse(nil, common.StatusErr, []byte(msg))
}

func arityError(cmd string) []byte {
	return errResponse(fmt.Sprintf("wrong number of arguments for '%s'", cmd))
}
