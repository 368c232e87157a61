package realtime

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/common"
	"github.com/vipulkatwal/disaster-manage/server/internal/geo"
)

type update struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newTestRouter(t *testing.T) (*Registry, *Router) {
	t.Helper()
	reg := newTestRegistry(t)
	return reg, NewRouter(reg, zap.NewNop())
}

func TestBroadcastToDisasterRoomExcludesSender(t *testing.T) {
	reg, router := newTestRouter(t)
	a, recA := newRecorder("a")
	b, recB := newRecorder("b")
	out, recOut := newRecorder("out")
	for _, c := range []*Client{a, b, out} {
		reg.Register(c)
	}
	reg.AddRoom("a", common.DisasterRoom("X"))
	reg.AddRoom("b", common.DisasterRoom("X"))

	n := router.BroadcastToDisasterRoom("X", "disaster_updated", update{ID: "X"}, "a")
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, recA.count("disaster_updated"))
	assert.Equal(t, 1, recB.count("disaster_updated"))
	assert.Equal(t, 0, recOut.count("disaster_updated"))

	n = router.BroadcastToDisasterRoom("X", "disaster_updated", update{ID: "X"}, "")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, recA.count("disaster_updated"))
}

func TestBroadcastGlobal(t *testing.T) {
	reg, router := newTestRouter(t)
	a, recA := newRecorder("a")
	b, recB := newRecorder("b")
	reg.Register(a)
	reg.Register(b)

	assert.Equal(t, 1, router.BroadcastGlobal("disaster_updated", update{ID: "1"}, "a"))
	assert.Equal(t, 0, recA.count("disaster_updated"))
	assert.Equal(t, 1, recB.count("disaster_updated"))

	assert.Equal(t, 2, router.BroadcastGlobal("disaster_updated", update{ID: "2"}, ""))
}

func TestBroadcastSwallowsSendErrors(t *testing.T) {
	reg, router := newTestRouter(t)
	gone, recGone := newRecorder("gone")
	recGone.fail = ErrClientClosed
	ok, recOK := newRecorder("ok")
	reg.Register(gone)
	reg.Register(ok)

	var n int
	assert.NotPanics(t, func() {
		n = router.BroadcastGlobal("disaster_updated", update{ID: "1"}, "")
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, recOK.count("disaster_updated"))

	reg.Register(&Client{ID: "nil-send"})
	assert.Equal(t, 1, router.BroadcastGlobal("disaster_updated", update{ID: "2"}, ""))
	assert.True(t, errors.Is(recGone.fail, ErrClientClosed))
}

// pointAt returns a point due north of origin at roughly meters away.
func pointAt(origin geo.Coordinates, meters float64) geo.Coordinates {
	deg := meters / geo.EarthRadiusMeters * 180 / math.Pi
	return geo.Coordinates{Lat: origin.Lat + deg, Lng: origin.Lng}
}

func TestBroadcastToNearbyBoundary(t *testing.T) {
	origin := geo.Coordinates{Lat: 12.5, Lng: 77.6}
	event := pointAt(origin, 10000)
	d := geo.DistanceBetween(origin, event)

	cases := []struct {
		name    string
		radius  float64
		receive bool
	}{
		{"exactly at radius", d, true},
		{"inside radius", d + 1, true},
		{"a millimeter outside", d - 0.001, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg, router := newTestRouter(t)
			c, rec := newRecorder("sub")
			reg.Register(c)
			reg.SetLocation("sub", Location{Lat: origin.Lat, Lng: origin.Lng, RadiusMeters: tc.radius})

			router.BroadcastToNearby("disaster_updated", update{ID: "X"}, event)
			if tc.receive {
				assert.Equal(t, 1, rec.count("disaster_updated"))
			} else {
				assert.Equal(t, 0, rec.count("disaster_updated"))
			}
		})
	}
}

func TestBroadcastToNearbyRadiusTenKilometers(t *testing.T) {
	reg, router := newTestRouter(t)
	origin := geo.Coordinates{Lat: 40.7128, Lng: -74.006}
	c, rec := newRecorder("sub")
	reg.Register(c)
	reg.SetLocation("sub", Location{Lat: origin.Lat, Lng: origin.Lng, RadiusMeters: DefaultRadiusMeters})

	router.BroadcastToNearby("resources_updated", update{ID: "near"}, pointAt(origin, 9999))
	router.BroadcastToNearby("resources_updated", update{ID: "far"}, pointAt(origin, 10001))

	got := rec.events("resources_updated")
	require.Len(t, got, 1)
	var body update
	require.NoError(t, json.Unmarshal(got[0].Payload, &body))
	assert.Equal(t, "near", body.ID)
}

func TestBroadcastToNearbyAddsDistance(t *testing.T) {
	reg, router := newTestRouter(t)
	origin := geo.Coordinates{Lat: 0, Lng: 0}
	c, rec := newRecorder("sub")
	reg.Register(c)
	reg.SetLocation("sub", Location{Lat: 0, Lng: 0, RadiusMeters: 200000})
	plain, recPlain := newRecorder("no-location")
	reg.Register(plain)

	at := geo.Coordinates{Lat: 1, Lng: 0}
	n := router.BroadcastToNearby("disaster_updated", update{ID: "X", Title: "Flood"}, at)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, recPlain.count("disaster_updated"))

	got := rec.events("disaster_updated")
	require.Len(t, got, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(got[0].Payload, &body))
	assert.Equal(t, "X", body["id"])
	assert.Equal(t, "Flood", body["title"])
	assert.InDelta(t, geo.DistanceBetween(origin, at), body["distance"], 0.001)
}

func TestBroadcastToNearbyWrapsNonObjectPayload(t *testing.T) {
	reg, router := newTestRouter(t)
	c, rec := newRecorder("sub")
	reg.Register(c)
	reg.SetLocation("sub", Location{Lat: 0, Lng: 0, RadiusMeters: 10})

	router.BroadcastToNearby("disaster_updated", "hello", geo.Coordinates{})
	got := rec.events("disaster_updated")
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"data":"hello","distance":0}`, string(got[0].Payload))
}
