package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type received struct {
	Event   string
	Payload json.RawMessage
}

// recorder is a Client whose Send captures every delivery.
type recorder struct {
	mu   sync.Mutex
	got  []received
	fail error
}

func (r *recorder) send(event string, payload any) error {
	if r.fail != nil {
		return r.fail
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.got = append(r.got, received{Event: event, Payload: b})
	r.mu.Unlock()
	return nil
}

func (r *recorder) events(name string) []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []received
	for _, g := range r.got {
		if g.Event == name {
			out = append(out, g)
		}
	}
	return out
}

func (r *recorder) count(name string) int { return len(r.events(name)) }

func newRecorder(id string) (*Client, *recorder) {
	rec := &recorder{}
	return &Client{ID: id, Send: rec.send}, rec
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(zap.NewNop())
}
