package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipulkatwal/disaster-manage/server/internal/geo"
)

func TestDecodeEvents(t *testing.T) {
	lat, lng, radius := 1.5, 2.5, 2500.0
	cases := []struct {
		name string
		raw  string
		want Event
	}{
		{"join disaster", `{"type":"join_disaster","data":"d1"}`, JoinDisaster{DisasterID: "d1"}},
		{"leave disaster", `{"type":"leave_disaster","data":"d1"}`, LeaveDisaster{DisasterID: "d1"}},
		{"join location", `{"type":"join_location","data":{"lat":1.5,"lng":2.5,"radius":2500}}`,
			JoinLocation{Lat: &lat, Lng: &lng, Radius: &radius}},
		{"disaster update", `{"type":"disaster_update","data":{"id":"d1","title":"Flood","unknown":true}}`,
			DisasterUpdate{ID: "d1", Title: "Flood"}},
		{"resource update", `{"type":"resource_update","data":{"disaster_id":"d1","name":"Shelter","type":"shelter"}}`,
			ResourceUpdate{DisasterID: "d1", Name: "Shelter", Type: "shelter"}},
		{"social media", `{"type":"social_media_update","data":{"disaster_id":"d1","urgency":"critical","post":"help"}}`,
			SocialMediaUpdate{DisasterID: "d1", Urgency: UrgencyCritical, Post: "help"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeCoordinates(t *testing.T) {
	got, err := Decode([]byte(`{"type":"disaster_update","data":{"id":"d1","coordinates":{"lat":40.7,"lng":-74}}}`))
	require.NoError(t, err)
	du := got.(DisasterUpdate)
	at, ok := du.Coordinates.Coordinates()
	require.True(t, ok)
	assert.Equal(t, geo.Coordinates{Lat: 40.7, Lng: -74}, at)
}

func TestDecodeToleratesMalformedOptionalFields(t *testing.T) {
	got, err := Decode([]byte(`{"type":"disaster_update","data":{"id":"d1","coordinates":"somewhere"}}`))
	require.NoError(t, err)
	du := got.(DisasterUpdate)
	assert.Equal(t, "d1", du.ID)
	_, ok := du.Coordinates.Coordinates()
	assert.False(t, ok)

	out, err := json.Marshal(du)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"d1","coordinates":null}`, string(out))

	got, err = Decode([]byte(`{"type":"social_media_update","data":{"disaster_id":"d1","urgency":3}}`))
	require.NoError(t, err)
	assert.Equal(t, SocialMediaUpdate{DisasterID: "d1"}, got)
}

func TestPositionCoordinates(t *testing.T) {
	cases := map[string]bool{
		`{"lat":40.7,"lng":-74}`:     true,
		`{"lat":0,"lng":0,"alt":12}`: true,
		`{"lat":"40.7","lng":-74}`:   false,
		`{"lat":40.7}`:               false,
		`{"lat":-91,"lng":0}`:        false,
		`{"lat":0,"lng":180.5}`:      false,
		`"somewhere"`:                false,
		`null`:                       false,
		`[40.7,-74]`:                 false,
	}
	for raw, want := range cases {
		var p Position
		require.NoError(t, json.Unmarshal([]byte(raw), &p), raw)
		_, ok := p.Coordinates()
		assert.Equal(t, want, ok, raw)
	}

	var empty Position
	_, ok := empty.Coordinates()
	assert.False(t, ok)
}

func TestJoinLocationPoint(t *testing.T) {
	lat, lng, bad := 1.0, 2.0, 200.0
	_, ok := JoinLocation{Lng: &lng}.Point()
	assert.False(t, ok)
	_, ok = JoinLocation{Lat: &lat}.Point()
	assert.False(t, ok)
	_, ok = JoinLocation{Lat: &lat, Lng: &bad}.Point()
	assert.False(t, ok)

	at, ok := JoinLocation{Lat: &lat, Lng: &lng}.Point()
	require.True(t, ok)
	assert.Equal(t, geo.Coordinates{Lat: 1, Lng: 2}, at)
}

func TestEventNames(t *testing.T) {
	// a payload field called name must not collide with the event name
	ev, err := Decode([]byte(`{"type":"resource_update","data":{"disaster_id":"d1","name":"Shelter"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventResourceUpdate, ev.EventName())
	assert.Equal(t, "Shelter", ev.(ResourceUpdate).Name)
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]error{
		`not json`:                                ErrMalformedPayload,
		`{"data":"x"}`:                            ErrMalformedPayload,
		`{"type":"join_disaster"}`:                ErrMalformedPayload,
		`{"type":"join_disaster","data":""}`:      ErrMalformedPayload,
		`{"type":"join_disaster","data":{"a":1}}`: ErrMalformedPayload,
		`{"type":"join_location","data":null}`:    ErrMalformedPayload,
		`{"type":"explode","data":{}}`:            ErrUnknownEvent,
	}
	for raw, want := range cases {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, want, raw)
	}
}

func TestJoinLocationRadiusDefault(t *testing.T) {
	zero, negative, set := 0.0, -5.0, 42.0
	assert.Equal(t, 10000.0, JoinLocation{}.RadiusOrDefault())
	assert.Equal(t, 10000.0, JoinLocation{Radius: &zero}.RadiusOrDefault())
	assert.Equal(t, 10000.0, JoinLocation{Radius: &negative}.RadiusOrDefault())
	assert.Equal(t, 42.0, JoinLocation{Radius: &set}.RadiusOrDefault())
}

func TestUrgencyEscalates(t *testing.T) {
	assert.False(t, UrgencyLow.Escalates())
	assert.False(t, UrgencyMedium.Escalates())
	assert.True(t, UrgencyHigh.Escalates())
	assert.True(t, UrgencyCritical.Escalates())
	assert.False(t, Urgency("panic").Escalates())
}
