// Package transport exposes the session manager over WebSocket.
package transport

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ambientscribe/asr-gateway/internal/asr"
	"github.com/ambientscribe/asr-gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins; auth happens at
		// the engine level via per-session API keys
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// StartRequest is the handshake frame a client sends after connecting
type StartRequest struct {
	Engine  string            `json:"engine"`
	Options map[string]string `json:"options"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleStream upgrades the connection and runs one transcription session
// over it. Protocol: JSON handshake {"engine","options"}, then binary PCM
// frames in; one JSON frame per update out. A text frame "end" finishes the
// session gracefully, flushing the terminal metrics before close.
func HandleStream(m *session.Manager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		var req StartRequest
		if err := conn.ReadJSON(&req); err != nil {
			logger.Warn().Err(err).Msg("Invalid handshake frame")
			conn.WriteJSON(errorResponse{Error: "invalid handshake"})
			return
		}

		id, err := m.StartSession(req.Engine, req.Options)
		if err != nil {
			logger.Warn().Err(err).Str("engine", req.Engine).Msg("Session start rejected")
			conn.WriteJSON(errorResponse{Error: err.Error()})
			return
		}
		// The session must not outlive the connection, whatever path exits
		// the loop below
		defer m.EndSession(id)

		if err := conn.WriteJSON(startResponse{SessionID: id}); err != nil {
			return
		}

		logger.Info().Str("session_id", id).Str("engine", req.Engine).Msg("Streaming connection established")

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Str("session_id", id).Msg("WebSocket read error")
				}
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				if err := m.ProcessChunk(id, data); err != nil {
					logger.Error().Err(err).Str("session_id", id).Msg("Chunk processing failed")
					return
				}
				updates, err := m.GetUpdates(id)
				if err != nil {
					return
				}
				if !writeUpdates(conn, updates) {
					return
				}

			case websocket.TextMessage:
				if strings.TrimSpace(string(data)) != "end" {
					logger.Debug().Str("session_id", id).Msg("Ignoring unexpected text frame")
					continue
				}
				final := m.EndSession(id)
				writeUpdates(conn, final)
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

// writeUpdates sends one JSON frame per update, reporting whether the
// connection is still usable
func writeUpdates(conn *websocket.Conn, updates []asr.Update) bool {
	for _, u := range updates {
		if err := conn.WriteJSON(u); err != nil {
			return false
		}
	}
	return true
}
