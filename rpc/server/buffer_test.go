package server

import (
	"bytes"
	"testing"
)

func TestNetBufAppendConsume(t *testing.T) {
	var b netBuf

	if b.Len() != 0 || len(b.Bytes()) != 0 {
		t.Fatalf("zero value not empty")
	}

	b.Append([]byte("hello"))
	b.Append([]byte(", world"))
	if !bytes.Equal(b.Bytes(), []byte("hello, world")) {
		t.Fatalf("expected %q, got %q", "hello, world", b.Bytes())
	}

	b.Consume(7)
	if !bytes.Equal(b.Bytes(), []byte("world")) {
		t.Fatalf("expected %q after consume, got %q", "world", b.Bytes())
	}

	b.Consume(5)
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", b.Len())
	}
	if b.off != 0 {
		t.Fatalf("expected offset reset on full consume, got %d", b.off)
	}
}

func TestNetBufCompaction(t *testing.T) {
	var b netBuf

	// interleave appends and consumes so the offset repeatedly crosses the
	// compaction threshold; the visible content must never be affected
	var want []byte
	for i := 0; i < 1000; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 37)
		b.Append(chunk)
		want = append(want, chunk...)

		b.Consume(29)
		want = want[29:]

		if !bytes.Equal(b.Bytes(), want) {
			t.Fatalf("content diverged at iteration %d", i)
		}
	}

	b.Consume(b.Len())
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after draining")
	}
}
