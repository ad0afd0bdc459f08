package broadcast

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ViewerHandler upgrades an HTTP request to a WebSocket connection and
// streams one debug session's broadcast Messages to it as JSON frames,
// grounded on the teacher's internal/controlplane/websocket/hub.go
// upgrade-then-ping-loop-then-write-loop shape. This is the one piece of
// transport surface this module owns directly; the rest of the REST/API
// layer is treated as an external collaborator per spec.md §1.
func (b *Broadcaster) ViewerHandler(sessionID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		viewerID := uuid.New().String()
		b.logger.Debug("debug session viewer connected", zap.Int64("session_id", sessionID), zap.String("viewer_id", viewerID))
		defer b.logger.Debug("debug session viewer disconnected", zap.Int64("session_id", sessionID), zap.String("viewer_id", viewerID))

		sub := b.Subscribe(sessionID)
		defer sub.Unsubscribe()

		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		// Discard any inbound frames; this is a one-way viewer stream. The
		// read loop exists only to drive the pong handler and detect
		// client disconnects.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					sub.Unsubscribe()
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					b.logger.Warn("marshal broadcast message failed", zap.Error(err))
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-sub.sub.done:
				return
			}
		}
	}
}
