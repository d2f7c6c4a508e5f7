// Package frame implements the engine wire format: a single length byte followed by
// up to 255 payload bytes. There is no escaping, checksum or version field.
package frame

// MaxPayload is the largest payload a single frame can carry.
const MaxPayload = 255

// Encode prepends the length byte to payload.
// Payloads larger than MaxPayload are rejected (ok == false); they are never fragmented.
func Encode(payload []byte) (frame []byte, ok bool) {
	if len(payload) > MaxPayload {
		return nil, false
	}
	frame = make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(len(payload)))
	return append(frame, payload...), true
}

// Split pops every complete frame from buf.
// It returns the payloads in wire order and the unconsumed tail (an incomplete frame).
// The returned payloads do not alias buf.
func Split(buf []byte) (payloads [][]byte, rest []byte) {
	for len(buf) > 0 {
		n := int(buf[0])
		if len(buf) < n+1 {
			break
		}
		p := make([]byte, n)
		copy(p, buf[1:n+1])
		payloads = append(payloads, p)
		buf = buf[n+1:]
	}
	return payloads, buf
}

// Decoder accumulates inbound bytes and yields complete frames.
type Decoder struct {
	buf []byte
}

// Write appends raw bytes read from the wire. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Next returns the next complete payload, or ok == false if none is buffered yet.
func (d *Decoder) Next() (payload []byte, ok bool) {
	if len(d.buf) == 0 {
		return nil, false
	}
	n := int(d.buf[0])
	if len(d.buf) < n+1 {
		return nil, false
	}
	payload = make([]byte, n)
	copy(payload, d.buf[1:n+1])
	d.buf = d.buf[n+1:]
	return payload, true
}

// Buffered reports how many bytes are waiting for the rest of their frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
