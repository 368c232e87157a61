package changefeed

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/logutil"
	"github.com/vipulkatwal/disaster-manage/server/internal/protocol"
)

const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// Broadcaster is the slice of the room router the bridge needs.
type Broadcaster interface {
	BroadcastGlobal(event string, payload any, exclude string) int
}

// RowChange is the payload pushed to clients for a table mutation. When
// Truncated is set, Record holds only the row id and clients refetch it.
type RowChange struct {
	Action    string          `json:"action"`
	Table     string          `json:"table"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Bridge forwards changes from a Source to every connected client and keeps
// the source alive across disconnects.
type Bridge struct {
	source     Source
	out        Broadcaster
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	forwarded atomic.Int64
}

type Option func(*Bridge)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l.Named("changefeed")
		}
	}
}

// WithBackoff sets the reconnect delay bounds. Zero values keep the defaults.
func WithBackoff(lo, hi time.Duration) Option {
	return func(b *Bridge) {
		if lo > 0 {
			b.minBackoff = lo
		}
		if hi > 0 {
			b.maxBackoff = hi
		}
	}
}

func NewBridge(source Source, out Broadcaster, opts ...Option) *Bridge {
	b := &Bridge{
		source:     source,
		out:        out,
		logger:     zap.L().Named("changefeed"),
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
	}
	for _, o := range opts {
		o(b)
	}
	if b.maxBackoff < b.minBackoff {
		b.maxBackoff = b.minBackoff
	}
	return b
}

// Forwarded reports how many changes reached the router.
func (b *Bridge) Forwarded() int64 { return b.forwarded.Load() }

// Run streams until ctx is done, reconnecting with exponential backoff.
// The delay resets once a stream has delivered a change.
func (b *Bridge) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.minBackoff
	bo.MaxInterval = b.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		var productive atomic.Bool
		err := b.source.Stream(ctx, func(ch Change) {
			productive.Store(true)
			b.Handle(ch)
		})
		if ctx.Err() != nil {
			return nil
		}
		if productive.Load() {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		b.logger.Warn("change stream dropped; reconnecting",
			zap.Error(err),
			zap.Duration("wait", wait),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Handle routes one change. Tables other than disasters and resources are
// ignored.
func (b *Bridge) Handle(ch Change) {
	var event string
	switch ch.Table {
	case TableDisasters:
		event = protocol.EventDisasterUpdated
	case TableResources:
		event = protocol.EventResourcesUpdated
	default:
		b.logger.Debug("ignoring change", zap.String("table", ch.Table))
		return
	}

	rc := RowChange{
		Action:    ch.Event,
		Table:     ch.Table,
		Record:    ch.Row(),
		Truncated: ch.Truncated,
	}
	if ch.Event == Update {
		rc.OldRecord = ch.Old
	}

	n := b.out.BroadcastGlobal(event, rc, "")
	b.forwarded.Add(1)
	b.logger.Debug("change forwarded", logutil.Values(
		zap.String("event", event),
		zap.String("action", ch.Event),
		zap.String("table", ch.Table),
		zap.Int("recipients", n),
	))
}
