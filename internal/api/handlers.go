package api

import (
	"encoding/json"
	"net/http"

	"github.com/vipulkatwal/disaster-manage/server/internal/realtime"
)

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Heartbeats  int    `json:"heartbeats"`
}

func handleHealth(w http.ResponseWriter, r *http.Request, reg *realtime.Registry, hb *realtime.HeartbeatMonitor) {
	resp := healthResponse{Status: "ok", Connections: reg.Len()}
	if hb != nil {
		resp.Heartbeats = hb.Active()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
