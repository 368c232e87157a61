package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vipulkatwal/disaster-manage/server/internal/realtime"
)

func SetupRoutes(ws *WSHandler, reg *realtime.Registry, hb *realtime.HeartbeatMonitor) http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	r.Get("/ws", ws.HandleWS)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(w, r, reg, hb)
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
			handleLive(w, r, reg)
		})
	})

	return r
}
