package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/PratikDhanave/trigger-contract-service/internal/auth"
	"github.com/PratikDhanave/trigger-contract-service/internal/models"
	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
)

const writeWait = 5 * time.Second

// Callers are authenticated by API key, not by origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamMessage is one websocket frame. Type is "update" or "closed".
type streamMessage struct {
	Type        string                `json:"type"`
	RequestID   string                `json:"request_id"`
	Seq         int                   `json:"seq,omitempty"`
	Terminal    bool                  `json:"terminal,omitempty"`
	Origin      string                `json:"origin,omitempty"`
	Update      *models.TriggerUpdate `json:"update,omitempty"`
	CloseReason string                `json:"close_reason,omitempty"`
	Updates     int                   `json:"updates,omitempty"`
}

func updateMessage(n pipeline.Notification) streamMessage {
	u := n.Update
	return streamMessage{
		Type:      "update",
		RequestID: n.RequestID,
		Seq:       n.Seq,
		Terminal:  n.Terminal,
		Origin:    string(n.Origin),
		Update:    &u,
	}
}

func closedMessage(requestID string, reason pipeline.CloseReason, origin pipeline.Origin, u models.TriggerUpdate, updates int) streamMessage {
	msg := streamMessage{
		Type:        "closed",
		RequestID:   requestID,
		Origin:      string(origin),
		CloseReason: string(reason),
		Updates:     updates,
	}
	if !u.IsZero() {
		msg.Update = &u
	}
	return msg
}

// streamObserver hands notifications to the websocket writer. Once the
// client is gone it stops blocking the session's dispatch goroutine.
type streamObserver struct {
	out  chan streamMessage
	gone chan struct{}
}

func (o *streamObserver) OnUpdate(n pipeline.Notification) { o.send(updateMessage(n)) }

func (o *streamObserver) OnClosed(c pipeline.Closure) {
	o.send(closedMessage(c.RequestID, c.Reason, c.Origin, c.Update, c.Updates))
}

func (o *streamObserver) send(m streamMessage) {
	select {
	case o.out <- m:
	case <-o.gone:
	}
}

// streamTrigger upgrades to a websocket and writes one JSON message per
// notification, then a final "closed" message. Subscribing to a session that
// already closed yields only the "closed" message.
func streamTrigger(m *pipeline.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id := c.Param("id")

		obs := &streamObserver{out: make(chan streamMessage, 16), gone: make(chan struct{})}
		unsubscribe, err := m.Subscribe(tenantID, id, obs)
		switch {
		case errors.Is(err, pipeline.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
			return
		case errors.Is(err, pipeline.ErrSessionClosed):
			snap, serr := m.Snapshot(tenantID, id)
			if serr != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
				return
			}
			obs.out <- closedMessage(id, snap.CloseReason, snap.Origin, snap.Terminal, snap.Updates)
			unsubscribe = func() {}
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
			return
		}
		defer func() {
			unsubscribe()
			close(obs.gone)
		}()

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already replied to the client.
			logger.Debug("websocket upgrade failed", "request_id", id, "error", err)
			return
		}
		defer conn.Close()

		// Reading is only needed to notice the client going away.
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-clientGone:
				return
			case msg := <-obs.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					logger.Debug("websocket write failed", "request_id", id, "error", err)
					return
				}
				if msg.Type == "closed" {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg.CloseReason),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}
