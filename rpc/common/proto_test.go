package common

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte("hello, world"),
		bytes.Repeat([]byte("z"), 64*1024),
	}

	for _, payload := range payloads {
		framed, err := EncodeFrame(payload)
		if err != nil {
			t.Fatalf("EncodeFrame failed: %v", err)
		}
		if len(framed) != 4+len(payload) {
			t.Fatalf("expected frame of %d bytes, got %d", 4+len(payload), len(framed))
		}

		got, consumed, err := DecodeFrame(framed)
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if consumed != len(framed) {
			t.Errorf("expected %d bytes consumed, got %d", len(framed), consumed)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("payload mismatch after round trip")
		}
	}
}

func TestDecodeFrameIncomplete(t *testing.T) {
	// fewer than 4 bytes buffered
	for i := 0; i < 4; i++ {
		payload, consumed, err := DecodeFrame(make([]byte, i))
		if payload != nil || consumed != 0 || err != nil {
			t.Errorf("short header (%d bytes): expected incomplete, got (%v, %d, %v)", i, payload, consumed, err)
		}
	}

	// declared length exceeds the buffered bytes
	framed, _ := EncodeFrame([]byte("hello1"))
	for i := 4; i < len(framed); i++ {
		payload, consumed, err := DecodeFrame(framed[:i])
		if payload != nil || consumed != 0 || err != nil {
			t.Errorf("truncated frame (%d bytes): expected incomplete, got (%v, %d, %v)", i, payload, consumed, err)
		}
	}
}

func TestDecodeFrameOversize(t *testing.T) {
	// a header declaring MaxMsgSize+1 must be rejected immediately, even
	// though no payload bytes follow
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], MaxMsgSize+1)

	_, _, err := DecodeFrame(buf[:])
	if !errors.Is(err, ErrMsgTooLarge) {
		t.Errorf("expected ErrMsgTooLarge, got %v", err)
	}

	// exactly MaxMsgSize is still legal
	binary.LittleEndian.PutUint32(buf[:], MaxMsgSize)
	payload, consumed, err := DecodeFrame(buf[:])
	if err != nil {
		t.Errorf("cap-sized frame rejected: %v", err)
	}
	if payload != nil || consumed != 0 {
		t.Errorf("cap-sized frame without payload should report incomplete")
	}
}

func TestEncodeFrameOversize(t *testing.T) {
	if _, err := EncodeFrame(make([]byte, MaxMsgSize+1)); !errors.Is(err, ErrMsgTooLarge) {
		t.Errorf("expected ErrMsgTooLarge, got %v", err)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	cases := [][]string{
		{},
		{"ping"},
		{"get", "some-key"},
		{"set", "key", "value with spaces and \x00 bytes"},
		{"set", "key", ""},
	}

	for _, args := range cases {
		payload, err := AppendRequest(nil, args...)
		if err != nil {
			t.Fatalf("AppendRequest(%q) failed: %v", args, err)
		}

		got, err := ParseRequest(payload)
		if err != nil {
			t.Fatalf("ParseRequest(%q) failed: %v", args, err)
		}

		gotStr := make([]string, len(got))
		for i, arg := range got {
			gotStr[i] = string(arg)
		}
		if !reflect.DeepEqual(gotStr, append([]string{}, args...)) {
			t.Errorf("expected %q, got %q", args, gotStr)
		}
	}
}

func TestParseRequestMalformed(t *testing.T) {
	valid, _ := AppendRequest(nil, "get", "key")

	cases := map[string][]byte{
		"empty payload":     {},
		"short count":       {1, 0},
		"truncated length":  valid[:6],
		"truncated string":  valid[:len(valid)-1],
		"trailing bytes":    append(append([]byte{}, valid...), 'x'),
		"length past end":   {1, 0, 0, 0, 255, 0, 0, 0},
		"arg count too big": {255, 255, 255, 255},
	}

	for name, payload := range cases {
		if _, err := ParseRequest(payload); !errors.Is(err, ErrMalformedRequest) {
			t.Errorf("%s: expected ErrMalformedRequest, got %v", name, err)
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	for _, status := range []Status{StatusOK, StatusErr, StatusNotFound} {
		body := []byte("body for " + status.String())

		payload := AppendResponse(nil, status, body)

		gotStatus, gotBody, err := ParseResponse(payload)
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if gotStatus != status {
			t.Errorf("expected status %v, got %v", status, gotStatus)
		}
		if !bytes.Equal(gotBody, body) {
			t.Errorf("body mismatch after round trip")
		}
	}

	if _, _, err := ParseResponse([]byte{1, 2}); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}
