package protocol

import (
	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/common"
	"github.com/vipulkatwal/disaster-manage/server/internal/logutil"
	"github.com/vipulkatwal/disaster-manage/server/internal/realtime"
)

// Dispatcher applies the fan-out rules for client events. It keeps no state
// of its own; everything lives in the registry.
//
// A disaster_update reaches its room, the nearby subscribers and everyone
// else. A client in more than one of those audiences gets one copy per
// audience; there is no de-duplication.
type Dispatcher struct {
	reg       *realtime.Registry
	router    *realtime.Router
	heartbeat *realtime.HeartbeatMonitor
	logger    *zap.Logger
}

func NewDispatcher(reg *realtime.Registry, router *realtime.Router, hb *realtime.HeartbeatMonitor, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.L()
	}
	return &Dispatcher{
		reg:       reg,
		router:    router,
		heartbeat: hb,
		logger:    logger.Named("dispatcher"),
	}
}

// Connect registers c and starts its heartbeat.
func (d *Dispatcher) Connect(c *realtime.Client) {
	d.reg.Register(c)
	if d.heartbeat == nil {
		return
	}
	stop := d.heartbeat.Start(c)
	if !d.reg.SetHeartbeat(c.ID, stop) {
		// disconnected before the timer was attached
		stop()
	}
	d.logger.Info("client connected", zap.String("conn_id", c.ID))
}

// Disconnect stops the heartbeat and drops every membership of connID.
// Calling it twice is harmless.
func (d *Dispatcher) Disconnect(connID string) {
	if d.reg.Remove(connID) {
		d.logger.Info("client disconnected", zap.String("conn_id", connID))
	}
}

// HandleMessage decodes one frame from connID and dispatches it. The error
// is only meant for a reply to the sender.
func (d *Dispatcher) HandleMessage(connID string, raw []byte) error {
	ev, err := Decode(raw)
	if err != nil {
		d.logger.Warn("dropping client message", zap.String("conn_id", connID), zap.Error(err))
		return err
	}
	d.Dispatch(connID, ev)
	return nil
}

// Dispatch applies the rule for ev, sent by connID.
func (d *Dispatcher) Dispatch(connID string, ev Event) {
	log := d.logger.With(zap.String("conn_id", connID), zap.String("event", ev.EventName()))

	switch e := ev.(type) {
	case JoinDisaster:
		if e.DisasterID == "" {
			return
		}
		d.reg.AddRoom(connID, common.DisasterRoom(e.DisasterID))
		log.Debug("joined disaster room", zap.String("disaster_id", e.DisasterID))

	case LeaveDisaster:
		if e.DisasterID == "" {
			return
		}
		d.reg.RemoveRoom(connID, common.DisasterRoom(e.DisasterID))
		log.Debug("left disaster room", zap.String("disaster_id", e.DisasterID))

	case JoinLocation:
		at, ok := e.Point()
		if !ok {
			log.Warn("ignoring join_location without usable coordinates")
			return
		}
		d.reg.AddRoom(connID, common.LocationRoom(at.Lat, at.Lng))
		d.reg.SetLocation(connID, realtime.Location{
			Lat:          at.Lat,
			Lng:          at.Lng,
			RadiusMeters: e.RadiusOrDefault(),
		})
		log.Debug("joined location", logutil.Point("at", at.Lat, at.Lng),
			zap.Float64("radius", e.RadiusOrDefault()))

	case DisasterUpdate:
		room, nearby := -1, -1
		if e.ID != "" {
			room = d.router.BroadcastToDisasterRoom(e.ID, EventDisasterUpdated, e, connID)
		}
		if at, ok := e.Coordinates.Coordinates(); ok {
			nearby = d.router.BroadcastToNearby(EventDisasterUpdated, e, at)
		}
		global := d.router.BroadcastGlobal(EventDisasterUpdated, e, connID)
		log.Debug("fanned out", zap.String("disaster_id", e.ID), logutil.Fanout(room, nearby, global))

	case ResourceUpdate:
		room, nearby := -1, -1
		if e.DisasterID != "" {
			room = d.router.BroadcastToDisasterRoom(e.DisasterID, EventResourcesUpdated, e, connID)
		}
		if at, ok := e.Coordinates.Coordinates(); ok {
			nearby = d.router.BroadcastToNearby(EventResourcesUpdated, e, at)
		}
		log.Debug("fanned out", zap.String("disaster_id", e.DisasterID), logutil.Fanout(room, nearby, -1))

	case SocialMediaUpdate:
		room, global := -1, -1
		if e.DisasterID != "" {
			room = d.router.BroadcastToDisasterRoom(e.DisasterID, EventSocialMediaUpdated, e, connID)
		}
		if e.Urgency.Escalates() {
			global = d.router.BroadcastGlobal(EventSocialMediaUpdated, e, connID)
		}
		log.Debug("fanned out", zap.String("disaster_id", e.DisasterID),
			zap.String("urgency", string(e.Urgency)), logutil.Fanout(room, -1, global))

	default:
		log.Warn("no rule for event")
	}
}
