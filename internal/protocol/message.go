package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/vipulkatwal/disaster-manage/server/internal/geo"
	"github.com/vipulkatwal/disaster-manage/server/internal/realtime"
)

// Inbound event names.
const (
	EventJoinDisaster      = "join_disaster"
	EventLeaveDisaster     = "leave_disaster"
	EventJoinLocation      = "join_location"
	EventDisasterUpdate    = "disaster_update"
	EventResourceUpdate    = "resource_update"
	EventSocialMediaUpdate = "social_media_update"
)

// Outbound event names.
const (
	EventDisasterUpdated    = "disaster_updated"
	EventResourcesUpdated   = "resources_updated"
	EventSocialMediaUpdated = "social_media_updated"
	EventHeartbeat          = realtime.HeartbeatEvent
	EventError              = "error"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownEvent     = errors.New("unknown event")
)

// Message is the wire envelope in both directions: {"type": ..., "data": ...}.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorReply is sent back to a client whose message could not be handled.
type ErrorReply struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// Event is one decoded inbound message.
type Event interface {
	EventName() string
	isEvent()
}

type JoinDisaster struct {
	DisasterID string
}

type LeaveDisaster struct {
	DisasterID string
}

// JoinLocation leaves Lat and Lng nil when the client omitted them.
type JoinLocation struct {
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Radius *float64 `json:"radius,omitempty"`
}

// Point returns the requested center, or false when either coordinate is
// missing or out of range.
func (j JoinLocation) Point() (geo.Coordinates, bool) {
	if j.Lat == nil || j.Lng == nil {
		return geo.Coordinates{}, false
	}
	at := geo.Coordinates{Lat: *j.Lat, Lng: *j.Lng}
	return at, at.Valid()
}

// RadiusOrDefault returns the requested radius, or the default when it is
// missing or not positive.
func (j JoinLocation) RadiusOrDefault() float64 {
	if j.Radius == nil || !(*j.Radius > 0) {
		return realtime.DefaultRadiusMeters
	}
	return *j.Radius
}

type DisasterUpdate struct {
	ID           string   `json:"id"`
	Action       string   `json:"action,omitempty"`
	Title        string   `json:"title,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Coordinates  Position `json:"coordinates,omitempty"`
}

type ResourceUpdate struct {
	ID           string   `json:"id,omitempty"`
	DisasterID   string   `json:"disaster_id"`
	Action       string   `json:"action,omitempty"`
	Name         string   `json:"name,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
	Type         string   `json:"type,omitempty"`
	Coordinates  Position `json:"coordinates,omitempty"`
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Escalates reports whether the urgency is broadcast beyond the disaster room.
func (u Urgency) Escalates() bool {
	return u == UrgencyHigh || u == UrgencyCritical
}

// UnmarshalJSON accepts any JSON value. Anything but a string reads as no
// urgency, which only costs the escalation.
func (u *Urgency) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	if r.Type != gjson.String {
		*u = ""
		return nil
	}
	*u = Urgency(r.Str)
	return nil
}

// Position is an optional coordinate pair as sent by the client. A value
// that is not an object with numeric, in-range lat and lng reads as absent,
// which only costs the nearby delivery.
type Position json.RawMessage

// PositionOf encodes c as a Position.
func PositionOf(c geo.Coordinates) Position {
	b, _ := json.Marshal(c)
	return b
}

// Coordinates returns the decoded point, or false when it is absent or
// malformed.
func (p Position) Coordinates() (geo.Coordinates, bool) {
	if len(p) == 0 {
		return geo.Coordinates{}, false
	}
	r := gjson.ParseBytes(p)
	if !r.IsObject() {
		return geo.Coordinates{}, false
	}
	lat, lng := r.Get("lat"), r.Get("lng")
	if lat.Type != gjson.Number || lng.Type != gjson.Number {
		return geo.Coordinates{}, false
	}
	c := geo.Coordinates{Lat: lat.Float(), Lng: lng.Float()}
	return c, c.Valid()
}

// MarshalJSON re-encodes a usable point as {"lat","lng"} and anything else
// as null, so malformed input is not echoed to other clients.
func (p Position) MarshalJSON() ([]byte, error) {
	c, ok := p.Coordinates()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(c)
}

func (p *Position) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

type SocialMediaUpdate struct {
	ID         string  `json:"id,omitempty"`
	DisasterID string  `json:"disaster_id"`
	Post       string  `json:"post,omitempty"`
	User       string  `json:"user,omitempty"`
	Urgency    Urgency `json:"urgency"`
}

func (JoinDisaster) EventName() string      { return EventJoinDisaster }
func (LeaveDisaster) EventName() string     { return EventLeaveDisaster }
func (JoinLocation) EventName() string      { return EventJoinLocation }
func (DisasterUpdate) EventName() string    { return EventDisasterUpdate }
func (ResourceUpdate) EventName() string    { return EventResourceUpdate }
func (SocialMediaUpdate) EventName() string { return EventSocialMediaUpdate }

func (JoinDisaster) isEvent()      {}
func (LeaveDisaster) isEvent()     {}
func (JoinLocation) isEvent()      {}
func (DisasterUpdate) isEvent()    {}
func (ResourceUpdate) isEvent()    {}
func (SocialMediaUpdate) isEvent() {}

// Decode parses a raw client frame. Fields outside an event's shape are
// dropped.
func Decode(raw []byte) (Event, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch msg.Type {
	case EventJoinDisaster:
		id, err := decodeID(msg)
		return JoinDisaster{DisasterID: id}, err
	case EventLeaveDisaster:
		id, err := decodeID(msg)
		return LeaveDisaster{DisasterID: id}, err
	case EventJoinLocation:
		var ev JoinLocation
		return ev, decodeData(msg, &ev)
	case EventDisasterUpdate:
		var ev DisasterUpdate
		return ev, decodeData(msg, &ev)
	case EventResourceUpdate:
		var ev ResourceUpdate
		return ev, decodeData(msg, &ev)
	case EventSocialMediaUpdate:
		var ev SocialMediaUpdate
		return ev, decodeData(msg, &ev)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, msg.Type)
}

func decodeData(msg Message, v any) error {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return fmt.Errorf("%w: %s without data", ErrMalformedPayload, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, msg.Type, err)
	}
	return nil
}

func decodeID(msg Message) (string, error) {
	var id string
	if err := decodeData(msg, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s with empty id", ErrMalformedPayload, msg.Type)
	}
	return id, nil
}
