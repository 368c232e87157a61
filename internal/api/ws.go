package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/protocol"
	"github.com/vipulkatwal/disaster-manage/server/internal/realtime"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades /ws requests and runs one read loop and one write pump
// per connection.
type WSHandler struct {
	Dispatcher   *protocol.Dispatcher
	Logger       *zap.Logger
	SendBuffer   int
	WriteTimeout time.Duration
	ReadLimit    int64

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func (h *WSHandler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

func (h *WSHandler) track(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns == nil {
		h.conns = make(map[*websocket.Conn]struct{})
	}
	h.conns[conn] = struct{}{}
}

func (h *WSHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// CloseAll sends a going-away close frame to every open socket and closes it.
// Their read loops then run the normal disconnect path.
func (h *WSHandler) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
}

// Open reports the number of sockets currently served.
func (h *WSHandler) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("upgrade failed", zap.Error(err))
		return
	}
	h.track(conn)
	defer h.untrack(conn)

	id := uuid.NewString()
	log := h.logger().With(zap.String("conn_id", id), zap.String("remote", r.RemoteAddr))

	outbox := realtime.NewOutbox(h.SendBuffer)
	send := func(event string, payload any) error {
		frame, err := json.Marshal(realtime.Envelope{Type: event, Data: payload})
		if err != nil {
			return err
		}
		return outbox.Enqueue(frame)
	}
	client := &realtime.Client{ID: id, Send: send}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.writePump(conn, outbox, log)
	}()

	h.Dispatcher.Connect(client)

	if h.ReadLimit > 0 {
		conn.SetReadLimit(h.ReadLimit)
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws read error", zap.Error(err))
			}
			break
		}
		if err := h.Dispatcher.HandleMessage(id, msg); err != nil {
			reply := protocol.ErrorReply{Error: err.Error()}
			var m protocol.Message
			if json.Unmarshal(msg, &m) == nil {
				reply.Type = m.Type
			}
			if err := send(protocol.EventError, reply); err != nil && !errors.Is(err, realtime.ErrClientClosed) {
				log.Debug("error reply dropped", zap.Error(err))
			}
		}
	}

	h.Dispatcher.Disconnect(id)
	outbox.Close()
	<-pumpDone
	_ = conn.Close()
}

// writePump is the only writer of data frames on conn. A failed write closes
// the socket so the read loop ends too.
func (h *WSHandler) writePump(conn *websocket.Conn, outbox *realtime.Outbox, log *zap.Logger) {
	for frame := range outbox.C() {
		if h.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Debug("ws write error", zap.Error(err))
			_ = conn.Close()
			// drain until the read loop closes the outbox
			for range outbox.C() {
			}
			return
		}
	}
}
