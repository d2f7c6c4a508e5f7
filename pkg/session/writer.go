package session

import (
	"net"
	"sync"
)

// outbox holds the bytes waiting for a connection's writer goroutine, in send order.
type outbox struct {
	mu      sync.Mutex
	pending [][]byte
	closed  bool
	wake    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) push(b []byte) {
	o.mu.Lock()
	if !o.closed {
		o.pending = append(o.pending, b)
	}
	o.mu.Unlock()
	o.notify()
}

// close lets the writer drain what is queued and then hang up.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.notify()
}

// abort stops the writer and drops whatever is still queued.
func (o *outbox) abort() {
	o.mu.Lock()
	o.closed = true
	o.pending = nil
	o.mu.Unlock()
	o.notify()
}

func (o *outbox) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// next blocks until bytes are queued. It returns false once the outbox is closed and empty.
func (o *outbox) next() ([][]byte, bool) {
	for {
		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		closed := o.closed
		o.mu.Unlock()

		if len(batch) > 0 {
			return batch, true
		}
		if closed {
			return nil, false
		}
		<-o.wake
	}
}

// writePump owns every write to conn. A failed write is posted back to the loop and ends
// the session through the usual disconnect path.
func (m *Manager) writePump(s *Session, conn net.Conn, out *outbox) {
	go func() {
		for {
			batch, ok := out.next()
			if !ok {
				_ = conn.Close()
				return
			}
			for _, b := range batch {
				if _, err := conn.Write(b); err != nil {
					m.loop.Post(func() { m.onWriteError(s, conn, err) })
					return
				}
			}
		}
	}()
}

func (m *Manager) onWriteError(s *Session, conn net.Conn, err error) {
	if s.conn != conn {
		return
	}
	m.logger.Warn("Engine write failed", "session_id", s.id, "err", err)
	m.onDisconnect(s)
}
