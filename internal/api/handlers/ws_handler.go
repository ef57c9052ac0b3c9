package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/realtime"
)

type WSHandler struct {
	relay    *realtime.Relay
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewWSHandler(relay *realtime.Relay, log *logrus.Entry) *WSHandler {
	return &WSHandler{
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
		log: log,
	}
}

// Realtime upgrades the browser connection and hands it to the relay for
// the lifetime of the voice session.
func (h *WSHandler) Realtime(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote the response in most cases
		return
	}
	defer conn.Close()

	if err := h.relay.Handle(c.Request.Context(), conn); err != nil {
		h.log.WithError(err).Warn("realtime session ended with error")
	}
}
