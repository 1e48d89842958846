package server

// netBuf is an ordered byte buffer with cheap prefix removal. Consuming the
// front only advances an offset; the dead prefix is reclaimed when it grows
// past the live bytes, so draining many small frames stays linear instead of
// shifting the remainder on every consume.
type netBuf struct {
	data []byte
	off  int
}

// Bytes returns the unconsumed bytes. The slice is invalidated by Append
// and Consume.
func (b *netBuf) Bytes() []byte {
	return b.data[b.off:]
}

// Len returns the number of unconsumed bytes
func (b *netBuf) Len() int {
	return len(b.data) - b.off
}

// Append adds p to the back of the buffer
func (b *netBuf) Append(p []byte) {
	// reclaim the consumed prefix once it dominates the backing array
	if b.off > 0 && b.off >= len(b.data)-b.off {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
	b.data = append(b.data, p...)
}

// Consume removes n bytes from the front of the buffer
func (b *netBuf) Consume(n int) {
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}
