package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vipulkatwal/disaster-manage/server/internal/geo"
)

const (
	disasterPrefix = "disaster:"
	locationPrefix = "location:"
)

// RoomKind tells which audience a room key addresses.
type RoomKind int

const (
	RoomUnknown RoomKind = iota
	RoomDisaster
	RoomLocation
)

func (k RoomKind) String() string {
	switch k {
	case RoomDisaster:
		return "disaster"
	case RoomLocation:
		return "location"
	default:
		return "unknown"
	}
}

// DisasterRoom returns the room key for a disaster id:
//
//	"disaster:<id>"
func DisasterRoom(disasterID string) string {
	return disasterPrefix + disasterID
}

// LocationRoom returns the grid-cell room key for a point:
//
//	"location:40.712,-74.006"
func LocationRoom(lat, lng float64) string {
	return locationPrefix + geo.CellOf(lat, lng).Key()
}

// Room is a decoded room key.
type Room struct {
	Kind       RoomKind
	DisasterID string
	Cell       geo.Cell
}

// ParseRoom decodes a key produced by DisasterRoom or LocationRoom.
func ParseRoom(key string) (Room, error) {
	switch {
	case strings.HasPrefix(key, disasterPrefix):
		id := strings.TrimPrefix(key, disasterPrefix)
		if id == "" {
			return Room{}, fmt.Errorf("malformed room %q: empty disaster id", key)
		}
		return Room{Kind: RoomDisaster, DisasterID: id}, nil

	case strings.HasPrefix(key, locationPrefix):
		parts := strings.SplitN(strings.TrimPrefix(key, locationPrefix), ",", 2)
		if len(parts) != 2 {
			return Room{}, fmt.Errorf("malformed room %q: want lat,lng", key)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return Room{}, fmt.Errorf("malformed room %q: %w", key, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return Room{}, fmt.Errorf("malformed room %q: %w", key, err)
		}
		return Room{Kind: RoomLocation, Cell: geo.Cell{Lat: lat, Lng: lng}}, nil
	}
	return Room{}, fmt.Errorf("unknown room %q", key)
}
