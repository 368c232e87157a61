package realtime

import "sync"

// Outbox is a connection's bounded write queue. Enqueue never blocks: a full
// or closed queue rejects the frame.
type Outbox struct {
	mu     sync.RWMutex
	ch     chan []byte
	closed bool
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 256
	}
	return &Outbox{ch: make(chan []byte, size)}
}

func (o *Outbox) Enqueue(frame []byte) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClientClosed
	}
	select {
	case o.ch <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// C is drained by the connection's write pump. It is closed by Close.
func (o *Outbox) C() <-chan []byte { return o.ch }

func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}
