package server

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/eKV/lib/store"
	"github.com/ValentinKolb/eKV/rpc/common"
)

// dispatch encodes args as a request, runs it through the handler and
// decodes the response
func dispatch(t *testing.T, h HandleFunc, args ...string) (common.Status, []byte) {
	t.Helper()

	req, err := common.AppendRequest(nil, args...)
	if err != nil {
		t.Fatalf("AppendRequest failed: %v", err)
	}

	status, body, err := common.ParseResponse(h(req))
	if err != nil {
		t.Fatalf("handler returned malformed response: %v", err)
	}
	return status, body
}

func expectOK(t *testing.T, h HandleFunc, want string, args ...string) {
	t.Helper()
	status, body := dispatch(t, h, args...)
	if status != common.StatusOK {
		t.Fatalf("%v: expected ok, got %v (%q)", args, status, body)
	}
	if string(body) != want {
		t.Errorf("%v: expected body %q, got %q", args, want, body)
	}
}

func expectStatus(t *testing.T, h HandleFunc, want common.Status, args ...string) {
	t.Helper()
	if status, body := dispatch(t, h, args...); status != want {
		t.Errorf("%v: expected status %v, got %v (%q)", args, want, status, body)
	}
}

func TestEchoHandler(t *testing.T) {
	h := NewEchoHandler()

	for _, payload := range [][]byte{nil, []byte("hello1"), bytes.Repeat([]byte("x"), 1<<16)} {
		if got := h(payload); !bytes.Equal(got, payload) {
			t.Errorf("echo mismatch for %d byte payload", len(payload))
		}
	}
}

func TestStoreHandlerSetGetDel(t *testing.T) {
	h := NewStoreHandler(store.New())

	expectStatus(t, h, common.StatusNotFound, "get", "k1")

	expectOK(t, h, "", "set", "k1", "v1")
	expectOK(t, h, "v1", "get", "k1")

	expectOK(t, h, "", "set", "k1", "v2")
	expectOK(t, h, "v2", "get", "k1")

	expectOK(t, h, "", "del", "k1")
	expectStatus(t, h, common.StatusNotFound, "get", "k1")
	expectStatus(t, h, common.StatusNotFound, "del", "k1")
}

func TestStoreHandlerHasLen(t *testing.T) {
	h := NewStoreHandler(store.New())

	expectOK(t, h, "0", "len")
	expectOK(t, h, "0", "has", "k1")

	expectOK(t, h, "", "set", "k1", "v1")
	expectOK(t, h, "", "set", "k2", "v2")

	expectOK(t, h, "1", "has", "k1")
	expectOK(t, h, "2", "len")
}

func TestStoreHandlerPingEcho(t *testing.T) {
	h := NewStoreHandler(store.New())

	expectOK(t, h, "pong", "ping")
	expectOK(t, h, "hello1", "ping", "hello1")
	expectOK(t, h, "hello2", "echo", "hello2")
}

func TestStoreHandlerCaseInsensitive(t *testing.T) {
	h := NewStoreHandler(store.New())

	expectOK(t, h, "", "SeT", "k1", "v1")
	expectOK(t, h, "v1", "GET", "k1")
}

func TestStoreHandlerErrors(t *testing.T) {
	h := NewStoreHandler(store.New())

	// unknown command and wrong arity are soft errors
	expectStatus(t, h, common.StatusErr, "nosuchcmd")
	expectStatus(t, h, common.StatusErr, "get")
	expectStatus(t, h, common.StatusErr, "get", "k1", "extra")
	expectStatus(t, h, common.StatusErr, "set", "k1")
	expectStatus(t, h, common.StatusErr, "len", "extra")
	expectStatus(t, h, common.StatusErr)

	// a payload that is not a string list at all
	status, _, err := common.ParseResponse(h([]byte{0xff}))
	if err != nil {
		t.Fatalf("handler returned malformed response: %v", err)
	}
	if status != common.StatusErr {
		t.Errorf("expected err status for garbage payload, got %v", status)
	}
}

func TestStoreHandlerBinaryValues(t *testing.T) {
	s := store.New()
	h := NewStoreHandler(s)

	value := string([]byte{0, 1, 2, 255, 254})
	expectOK(t, h, "", "set", "bin", value)
	expectOK(t, h, value, "get", "bin")
}
