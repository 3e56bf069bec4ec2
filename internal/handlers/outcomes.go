package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/trigger-contract-service/internal/auth"
)

// OutcomeCounter is the read side of the outcome store.
type OutcomeCounter interface {
	CountOutcomes(ctx context.Context, tenantID, kind string, from, to time.Time) (int64, error)
}

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
func parseRFC3339(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// RegisterOutcomeRoutes registers the outcome reporting endpoint.
//
// GET /outcomes?kind=...&from=...&to=...
// - kind is optional and filters on the terminal update kind
// - Returns the number of terminal outcomes closed in [from,to)
func RegisterOutcomeRoutes(r gin.IRoutes, st OutcomeCounter) {
	r.GET("/outcomes", func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		kind := c.Query("kind")
		fromStr := c.Query("from")
		toStr := c.Query("to")

		if fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from, to are required"})
			return
		}

		from, err := parseRFC3339(fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := parseRFC3339(toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := st.CountOutcomes(c.Request.Context(), tenantID, kind, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"kind":  kind,
			"count": count,
		})
	})
}
