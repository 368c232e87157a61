package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHeartbeatDefaultInterval(t *testing.T) {
	h := NewHeartbeatMonitor(0, zap.NewNop())
	assert.Equal(t, 30*time.Second, h.Interval())
}

func TestHeartbeatTicksWithTimestamp(t *testing.T) {
	h := NewHeartbeatMonitor(20*time.Millisecond, zap.NewNop())
	c, rec := newRecorder("a")
	stop := h.Start(c)
	defer stop()

	require.Eventually(t, func() bool { return rec.count(HeartbeatEvent) >= 2 },
		time.Second, 5*time.Millisecond)

	var hb Heartbeat
	require.NoError(t, json.Unmarshal(rec.events(HeartbeatEvent)[0].Payload, &hb))
	ts, err := time.Parse(time.RFC3339Nano, hb.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestHeartbeatFirstTickAfterOneInterval(t *testing.T) {
	interval := 100 * time.Millisecond
	h := NewHeartbeatMonitor(interval, zap.NewNop())
	c, rec := newRecorder("a")
	started := time.Now()
	stop := h.Start(c)
	defer stop()

	time.Sleep(interval / 2)
	assert.Equal(t, 0, rec.count(HeartbeatEvent))

	require.Eventually(t, func() bool { return rec.count(HeartbeatEvent) >= 1 },
		interval*10, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(started), interval)
}

func TestHeartbeatStopEndsDelivery(t *testing.T) {
	h := NewHeartbeatMonitor(10*time.Millisecond, zap.NewNop())
	c, rec := newRecorder("a")
	stop := h.Start(c)

	require.Eventually(t, func() bool { return rec.count(HeartbeatEvent) >= 1 },
		time.Second, 5*time.Millisecond)
	stop()
	stop()
	assert.Equal(t, 0, h.Active())

	after := rec.count(HeartbeatEvent)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, rec.count(HeartbeatEvent))
}

func TestHeartbeatRestartReplacesTicker(t *testing.T) {
	h := NewHeartbeatMonitor(time.Hour, zap.NewNop())
	c, _ := newRecorder("a")
	first := h.Start(c)
	second := h.Start(c)
	assert.Equal(t, 1, h.Active())

	first()
	assert.Equal(t, 1, h.Active())
	second()
	assert.Equal(t, 0, h.Active())
}

func TestHeartbeatMonitorStopReleasesAll(t *testing.T) {
	h := NewHeartbeatMonitor(time.Hour, zap.NewNop())
	for _, id := range []string{"a", "b", "c"} {
		c, _ := newRecorder(id)
		h.Start(c)
	}
	assert.Equal(t, 3, h.Active())
	h.Stop()
	assert.Equal(t, 0, h.Active())
}
