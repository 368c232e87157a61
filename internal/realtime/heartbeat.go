package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// HeartbeatEvent is the outbound event name of liveness ticks.
	HeartbeatEvent = "heartbeat"
	// DefaultHeartbeatInterval is the tick period used in production.
	DefaultHeartbeatInterval = 30 * time.Second
)

// Heartbeat is the payload of a liveness tick.
type Heartbeat struct {
	Timestamp string `json:"timestamp"`
}

// HeartbeatMonitor runs one ticker per connection.
type HeartbeatMonitor struct {
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]*ticker
}

type ticker struct {
	stop func()
}

func NewHeartbeatMonitor(interval time.Duration, logger *zap.Logger) *HeartbeatMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.L()
	}
	return &HeartbeatMonitor{
		interval: interval,
		now:      time.Now,
		logger:   logger.Named("heartbeat"),
		active:   make(map[string]*ticker),
	}
}

func (h *HeartbeatMonitor) Interval() time.Duration { return h.interval }

// Start begins ticking for c and returns the release func. The func is safe
// to call more than once; once it returns no further heartbeat reaches c.
func (h *HeartbeatMonitor) Start(c *Client) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		t := time.NewTicker(h.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				// a tick racing with cancel must not be delivered
				if ctx.Err() != nil {
					return
				}
				hb := Heartbeat{Timestamp: h.now().UTC().Format(time.RFC3339Nano)}
				if err := c.Send(HeartbeatEvent, hb); err != nil {
					h.logger.Debug("heartbeat dropped", zap.String("conn_id", c.ID), zap.Error(err))
				}
			}
		}
	}()

	tk := &ticker{}
	var once sync.Once
	tk.stop = func() {
		once.Do(func() {
			cancel()
			<-done
			h.mu.Lock()
			if h.active[c.ID] == tk {
				delete(h.active, c.ID)
			}
			h.mu.Unlock()
		})
	}

	h.mu.Lock()
	prev := h.active[c.ID]
	h.active[c.ID] = tk
	h.mu.Unlock()
	if prev != nil {
		prev.stop()
	}
	return tk.stop
}

// Active returns the number of running tickers.
func (h *HeartbeatMonitor) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Stop releases every running ticker.
func (h *HeartbeatMonitor) Stop() {
	h.mu.Lock()
	stops := make([]func(), 0, len(h.active))
	for _, tk := range h.active {
		stops = append(stops, tk.stop)
	}
	h.mu.Unlock()

	for _, s := range stops {
		s()
	}
	h.logger.Info("heartbeat monitor stopped", zap.Int("released", len(stops)))
}
