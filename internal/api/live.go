package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/realtime"
)

type liveView struct {
	Connections int              `json:"connections"`
	Rooms       int              `json:"rooms"`
	Clients     []map[string]any `json:"clients"`
}

func handleLive(w http.ResponseWriter, r *http.Request, reg *realtime.Registry) {
	w.Header().Set("Content-Type", "application/json")
	clients := reg.SnapshotView()
	if err := json.NewEncoder(w).Encode(liveView{
		Connections: len(clients),
		Rooms:       reg.RoomCount(),
		Clients:     clients,
	}); err != nil {
		LoggerFrom(r.Context()).Warn("encode live view failed", zap.Error(err))
	}
}
