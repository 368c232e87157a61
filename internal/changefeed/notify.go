package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const DefaultChannel = "row_changes"

// NotifySource listens on a Postgres NOTIFY channel fed by the
// notify_row_change trigger.
type NotifySource struct {
	DSN          string
	Channel      string
	PingInterval time.Duration
	Logger       *zap.Logger
}

func (s *NotifySource) Stream(ctx context.Context, fn func(Change)) error {
	channel := s.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	ping := s.PingInterval
	if ping <= 0 {
		ping = 90 * time.Second
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.Named("notify").With(zap.String("channel", channel))

	// pq reconnects on its own; a failed ping hands control back to the
	// bridge so it can apply its own backoff.
	l := pq.NewListener(s.DSN, time.Second, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn("listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("listener connection attempt failed", zap.Error(err))
		}
	})
	defer l.Close()

	if err := l.Listen(channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	t := time.NewTicker(ping)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-l.Notify:
			if !ok {
				return errors.New("listener closed")
			}
			if n == nil {
				// reconnected; notifications sent while down are lost
				continue
			}
			ch, err := ParseNotification(n.Extra)
			if err != nil {
				logger.Warn("dropping notification", zap.Error(err))
				continue
			}
			fn(ch)

		case <-t.C:
			if err := l.Ping(); err != nil {
				return fmt.Errorf("listener ping: %w", err)
			}
		}
	}
}
