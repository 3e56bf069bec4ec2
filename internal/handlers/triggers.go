package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/trigger-contract-service/internal/auth"
	"github.com/PratikDhanave/trigger-contract-service/internal/bridge"
	"github.com/PratikDhanave/trigger-contract-service/internal/models"
	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
)

// maxBridgePayload bounds form-encoded update bodies.
const maxBridgePayload = 64 << 10

// RegisterTriggerRoutes registers the trigger session endpoints.
//
// POST   /triggers              opens a listening session
// POST   /triggers/:id/updates  feeds one update (JSON or bridge form payload)
// DELETE /triggers/:id          cancels a listening session
// GET    /triggers/:id          returns the session snapshot
// GET    /triggers/:id/stream   streams notifications over a websocket
func RegisterTriggerRoutes(r gin.IRoutes, m *pipeline.Manager, logger *slog.Logger) {
	r.POST("/triggers", startTrigger(m))
	r.POST("/triggers/:id/updates", deliverUpdate(m))
	r.DELETE("/triggers/:id", cancelTrigger(m))
	r.GET("/triggers/:id", getTrigger(m))
	r.GET("/triggers/:id/stream", streamTrigger(m, logger))
}

func startTrigger(m *pipeline.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req models.TriggerStartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if req.EventName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_name required"})
			return
		}

		timeout := time.Duration(req.TimeoutMs) * time.Millisecond
		if req.TimeoutMs < 0 {
			timeout = -1
		}

		opts := pipeline.StartOptions{EventName: req.EventName, Timeout: timeout}
		if req.Options != nil {
			opts.Trigger = *req.Options
		}

		// The session outlives this request; it ends on its own terms.
		s, err := m.Start(context.WithoutCancel(c.Request.Context()), tenantID, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start trigger"})
			return
		}

		c.JSON(http.StatusCreated, models.TriggerStartResponse{
			RequestID: s.ID(),
			State:     s.State().String(),
		})
	}
}

// deliverUpdate returns 200 when the update was accepted and 202 when it was
// dropped because the session no longer listens. Dropping is not an error for
// the producer.
func deliverUpdate(m *pipeline.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		u, err := readUpdate(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("id")
		res := m.Deliver(c.Request.Context(), tenantID, id, u)

		status := http.StatusOK
		if !res.Accepted {
			status = http.StatusAccepted
		}
		c.JSON(status, models.UpdateIngestResponse{
			RequestID: id,
			Accepted:  res.Accepted,
			Terminal:  res.Terminal,
			State:     res.State.String(),
			Anomaly:   string(res.Anomaly),
		})
	}
}

func readUpdate(c *gin.Context) (models.TriggerUpdate, error) {
	if c.ContentType() == "application/x-www-form-urlencoded" {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBridgePayload))
		if err != nil {
			return models.TriggerUpdate{}, err
		}
		return bridge.Decode(string(body))
	}

	var u models.TriggerUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		if errors.Is(err, models.ErrMalformedUpdate) {
			return models.TriggerUpdate{}, err
		}
		return models.TriggerUpdate{}, errors.New("invalid JSON payload")
	}
	return u, nil
}

func cancelTrigger(m *pipeline.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id := c.Param("id")
		state, err := m.Cancel(tenantID, id)
		if errors.Is(err, pipeline.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": id, "state": state.String()})
	}
}

func getTrigger(m *pipeline.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		snap, err := m.Snapshot(tenantID, c.Param("id"))
		if errors.Is(err, pipeline.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
			return
		}
		c.JSON(http.StatusOK, snapshotResponse(snap))
	}
}

func snapshotResponse(s pipeline.Snapshot) models.TriggerSnapshot {
	out := models.TriggerSnapshot{
		RequestID:   s.RequestID,
		EventName:   s.EventName,
		State:       s.State.String(),
		Updates:     s.Updates,
		StartedAt:   s.StartedAt.UTC(),
		Origin:      string(s.Origin),
		CloseReason: string(s.CloseReason),
	}
	if !s.Trigger.IsZero() {
		o := s.Trigger
		out.Options = &o
	}
	if !s.Terminal.IsZero() {
		u := s.Terminal
		out.TerminalUpdate = &u
	}
	return out
}
