package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleChatWebSocket answers questions over a websocket. Each message is
// a queryRequest; each reply is a rag.QueryResult or an errorBody. Replies
// are sent in request order.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	for {
		var req queryRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}

		if req.Query == nil {
			if err := ws.WriteJSON(errorBody{Detail: errMissingQuery.Error()}); err != nil {
				slog.Error("WebSocket write error", "error", err)
				return
			}
			continue
		}

		ctx, cancel := s.queryContext(r.Context())
		res, err := s.assistant.Query(ctx, *req.Query, req.SessionID)
		cancel()

		var reply any = res
		if err != nil {
			slog.Error("Chat query failed", "session", req.SessionID, "error", err)
			reply = errorBody{Detail: err.Error()}
		}
		if err := ws.WriteJSON(reply); err != nil {
			slog.Error("WebSocket write error", "error", err)
			return
		}
	}
}
