package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// tenantCtxKey is the Gin context key used to store the authenticated tenant ID.
const tenantCtxKey = "tenant_id"

// APIKeyMiddleware maps the caller's API key to a tenant. The key is read from
// X-API-Key, or from an "Authorization: Bearer" header for clients such as
// browser websockets that cannot set custom headers through proxies.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := keys[apiKey(c.Request)]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(tenantCtxKey, tenantID)
		c.Next()
	}
}

func apiKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// TenantID returns the authenticated tenant ID from the request context.
func TenantID(c *gin.Context) string {
	v, _ := c.Get(tenantCtxKey)
	s, _ := v.(string)
	return s
}
