package realtime

import (
	"errors"
	"time"
)

var (
	// ErrClientClosed is returned when sending to a connection that is gone.
	ErrClientClosed = errors.New("realtime: client closed")
	// ErrSendQueueFull is returned when a slow client cannot take more frames.
	ErrSendQueueFull = errors.New("realtime: send queue full")
)

// DefaultRadiusMeters applies when a location subscription names no radius.
const DefaultRadiusMeters = 10000.0

// Client is one live connection as seen by the router.
type Client struct {
	ID string
	// abstract over the websocket so the router never touches the transport
	Send func(event string, payload any) error
}

// Location is a connection's subscribed area.
type Location struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radius"`
}

// Entry is a read-only copy of a registry entry.
type Entry struct {
	Client      *Client
	Rooms       []string
	Location    *Location
	ConnectedAt time.Time
}

// InRoom reports whether the entry is a member of room.
func (e Entry) InRoom(room string) bool {
	for _, r := range e.Rooms {
		if r == room {
			return true
		}
	}
	return false
}

// Envelope is the frame written to clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
