package realtime

import (
	"encoding/json"
	"math"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/common"
	"github.com/vipulkatwal/disaster-manage/server/internal/geo"
	"github.com/vipulkatwal/disaster-manage/server/internal/logutil"
)

// Router turns audiences into deliveries. Delivery is fire-and-forget: send
// errors from a connection that is going away are dropped.
type Router struct {
	reg    *Registry
	logger *zap.Logger
}

func NewRouter(reg *Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.L()
	}
	return &Router{reg: reg, logger: logger.Named("router")}
}

// BroadcastToDisasterRoom delivers to members of disaster:<disasterID> except
// exclude. An empty exclude reaches everyone in the room.
func (r *Router) BroadcastToDisasterRoom(disasterID, event string, payload any, exclude string) int {
	room := common.DisasterRoom(disasterID)
	sent := 0
	for _, c := range r.reg.Members(room) {
		if c.ID == exclude {
			continue
		}
		if r.deliver(c, event, payload) {
			sent++
		}
	}
	r.logger.Debug("room broadcast",
		zap.String("room", room),
		zap.String("event", event),
		zap.Int("delivered", sent),
	)
	return sent
}

// BroadcastToNearby delivers to every connection whose subscribed radius
// contains at. Each copy carries the computed "distance" in meters. The grid
// room a connection joined plays no part here.
func (r *Router) BroadcastToNearby(event string, payload any, at geo.Coordinates) int {
	base := objectFields(payload)
	sent := 0
	r.reg.ForEach(func(e Entry) bool {
		if e.Location == nil {
			return true
		}
		d := geo.Distance(at.Lat, at.Lng, e.Location.Lat, e.Location.Lng)
		if !(d <= e.Location.RadiusMeters) {
			return true
		}
		if r.deliver(e.Client, event, withDistance(base, payload, d)) {
			sent++
		}
		return true
	})
	r.logger.Debug("nearby broadcast",
		zap.String("event", event),
		logutil.Point("at", at.Lat, at.Lng),
		zap.Int("delivered", sent),
	)
	return sent
}

// BroadcastGlobal delivers to every connection except exclude.
func (r *Router) BroadcastGlobal(event string, payload any, exclude string) int {
	sent := 0
	for _, c := range r.reg.Clients() {
		if c.ID == exclude {
			continue
		}
		if r.deliver(c, event, payload) {
			sent++
		}
	}
	r.logger.Debug("global broadcast", zap.String("event", event), zap.Int("delivered", sent))
	return sent
}

func (r *Router) deliver(c *Client, event string, payload any) bool {
	if c == nil || c.Send == nil {
		return false
	}
	if err := c.Send(event, payload); err != nil {
		r.logger.Debug("dropped delivery",
			zap.String("conn_id", c.ID),
			zap.String("event", event),
			zap.Error(err),
		)
		return false
	}
	return true
}

// objectFields splits a JSON-object payload into its raw fields. Nil means
// the payload is not an object.
func objectFields(payload any) map[string]json.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil || !gjson.ParseBytes(b).IsObject() {
		return nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil
	}
	return fields
}

func withDistance(base map[string]json.RawMessage, payload any, d float64) any {
	dist, _ := json.Marshal(roundMeters(d))
	if base == nil {
		return map[string]any{"data": payload, "distance": json.RawMessage(dist)}
	}
	out := make(map[string]json.RawMessage, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out["distance"] = dist
	return out
}

// millimeter precision is plenty for clients
func roundMeters(d float64) float64 {
	return math.Round(d*1000) / 1000
}
