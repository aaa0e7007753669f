package app

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const metricsRealm = `Basic realm="unibot metrics"`

// metricsAuthMiddleware enforces Basic Auth on /metrics.
// When enabled is false every request passes through.
func metricsAuthMiddleware(enabled bool, username, password string) gin.HandlerFunc {
	wantUser, wantPass := []byte(username), []byte(password)

	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		// Both comparisons always run so timing does not reveal which part failed.
		userOK := subtle.ConstantTimeCompare([]byte(user), wantUser) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), wantPass) == 1
		if !ok || !userOK || !passOK {
			c.Header("WWW-Authenticate", metricsRealm)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}
