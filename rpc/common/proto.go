package common

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Wire Format
// --------------------------------------------------------------------------

// The eKV wire protocol is a stream of frames in both directions:
//
//	[u32 length][length bytes payload]
//
// A request payload nests a count-prefixed list of length-prefixed strings:
//
//	[u32 nstr][u32 len_1][len_1 bytes]...[u32 len_nstr][len_nstr bytes]
//
// A response payload carries a status code followed by the result body:
//
//	[u32 status][body bytes]
//
// All integers are little-endian.

const (
	// MaxMsgSize is the hard cap for a single frame payload. A frame
	// declaring more is a protocol violation and fatal to the connection.
	MaxMsgSize = 32 << 20

	// MaxArgs is the hard cap for strings in one request. It guards the
	// server against pathological allocation from a hostile count prefix.
	MaxArgs = 200 * 1000

	// lenSize is the width of every length and count prefix
	lenSize = 4
)

var (
	// ErrMsgTooLarge marks a frame whose declared length exceeds MaxMsgSize.
	// This is permanent, not a transient incomplete-read condition.
	ErrMsgTooLarge = errors.New("frame exceeds maximum message size")

	// ErrMalformedRequest marks a request payload whose string list is
	// truncated, overlong or followed by trailing garbage
	ErrMalformedRequest = errors.New("malformed request payload")

	// ErrMalformedResponse marks a response payload too short for its header
	ErrMalformedResponse = errors.New("malformed response payload")
)

// --------------------------------------------------------------------------
// Frame Codec
// --------------------------------------------------------------------------

// DecodeFrame extracts one frame from the front of buf.
//
// It returns (nil, 0, nil) while buf does not yet hold a complete frame -
// the caller should read more bytes and retry. On success it returns the
// payload (a sub-slice of buf, valid until buf is modified) and the total
// number of bytes consumed, 4 plus the payload length. ErrMsgTooLarge is
// returned as soon as the length prefix is readable, without waiting for
// further bytes.
func DecodeFrame(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < lenSize {
		return nil, 0, nil
	}

	length := binary.LittleEndian.Uint32(buf)
	if length > MaxMsgSize {
		return nil, 0, ErrMsgTooLarge
	}

	total := lenSize + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}

	return buf[lenSize:total], total, nil
}

// EncodeFrame prepends the 4-byte length prefix to payload
func EncodeFrame(payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, lenSize+len(payload)), payload)
}

// AppendFrame appends the framed encoding of payload to dst and returns the
// extended slice. It exists so the server's write path can frame responses
// directly into a connection's output buffer without extra allocation.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxMsgSize {
		return dst, ErrMsgTooLarge
	}

	var hdr [lenSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...), nil
}

// --------------------------------------------------------------------------
// Request Codec (count-prefixed string list)
// --------------------------------------------------------------------------

// ParseRequest decodes the string list nested in a request payload. The
// returned slices reference payload and stay valid only as long as payload
// does.
func ParseRequest(payload []byte) ([][]byte, error) {
	if len(payload) < lenSize {
		return nil, fmt.Errorf("%w: missing argument count", ErrMalformedRequest)
	}

	nstr := binary.LittleEndian.Uint32(payload)
	if nstr > MaxArgs {
		return nil, fmt.Errorf("%w: %d arguments exceed the limit of %d", ErrMalformedRequest, nstr, MaxArgs)
	}

	rest := payload[lenSize:]
	args := make([][]byte, 0, nstr)

	for uint32(len(args)) < nstr {
		if len(rest) < lenSize {
			return nil, fmt.Errorf("%w: truncated argument length", ErrMalformedRequest)
		}
		strLen := binary.LittleEndian.Uint32(rest)
		rest = rest[lenSize:]

		if uint64(len(rest)) < uint64(strLen) {
			return nil, fmt.Errorf("%w: argument runs past payload end", ErrMalformedRequest)
		}
		args = append(args, rest[:strLen])
		rest = rest[strLen:]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d arguments", ErrMalformedRequest, len(rest), nstr)
	}

	return args, nil
}

// AppendRequest appends the string-list encoding of args to dst. It is the
// client-side counterpart of ParseRequest.
func AppendRequest(dst []byte, args ...string) ([]byte, error) {
	if len(args) > MaxArgs {
		return dst, fmt.Errorf("%w: %d arguments exceed the limit of %d", ErrMalformedRequest, len(args), MaxArgs)
	}

	var num [lenSize]byte
	binary.LittleEndian.PutUint32(num[:], uint32(len(args)))
	dst = append(dst, num[:]...)

	for _, arg := range args {
		binary.LittleEndian.PutUint32(num[:], uint32(len(arg)))
		dst = append(dst, num[:]...)
		dst = append(dst, arg...)
	}

	return dst, nil
}

// --------------------------------------------------------------------------
// Response Codec (status + body)
// --------------------------------------------------------------------------

// Status is the first word of every response payload
type Status uint32

const (
	StatusOK       Status = iota // command executed, body holds the result
	StatusErr                    // command failed, body holds a message
	StatusNotFound               // key does not exist, body is empty
)

// String returns the string representation of a Status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErr:
		return "err"
	case StatusNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// AppendResponse appends the encoded response payload to dst
func AppendResponse(dst []byte, status Status, body []byte) []byte {
	var hdr [lenSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(status))
	dst = append(dst, hdr[:]...)
	return append(dst, body...)
}

// ParseResponse splits a response payload into status and body
func ParseResponse(payload []byte) (Status, []byte, error) {
	if len(payload) < lenSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(payload))
	}
	return Status(binary.LittleEndian.Uint32(payload)), payload[lenSize:], nil
}
