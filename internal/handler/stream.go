package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"imageclassifier/internal/logger"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewerHub tracks connected stream viewers.
type ViewerHub interface {
	Register(client *websocket.Conn)
	Unregister(client *websocket.Conn)
}

// StreamHandler handles viewer connections on GET /api/classification/stream and
// registers them in the hub to receive classification events.
func StreamHandler(hub ViewerHub, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.ErrorCtx(r.Context(), "WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		log.InfoCtx(r.Context(), "Viewer connected")

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.InfoCtx(r.Context(), "Viewer disconnected normally")
				} else {
					log.WarningCtx(r.Context(), "Viewer disconnected with error: %v", err)
				}
				return
			}
		}
	}
}
