package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
)

const unauthenticatedMessage = "Please login to verify certificates"

// RequireSession enforces bearer JWT tokens signed with HS256 and attaches
// the caller's session to the request context.
func RequireSession(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := SessionFromBearer(c.GetHeader("Authorization"), signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": unauthenticatedMessage})
			return
		}
		c.Set("session", sess)
		c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), sess))
		c.Next()
	}
}
