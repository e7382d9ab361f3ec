package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eventide/models"
)

const identityKey = "identity"

// TokenVerifier checks a bearer token; utils.Verifier implements it.
type TokenVerifier interface {
	Verify(token string) (models.IdentityClaim, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// verified claim for Identity.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			token, ok = strings.CutPrefix(header, "bearer ")
		}
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			abortJSON(c, http.StatusUnauthorized, "Not authorized.")
			return
		}

		claim, err := v.Verify(token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "Not authorized.")
			return
		}

		c.Set(identityKey, claim)
		c.Next()
	}
}

// Identity returns the claim stored by Authenticate.
func Identity(c *gin.Context) (models.IdentityClaim, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.IdentityClaim{}, false
	}
	claim, ok := v.(models.IdentityClaim)
	return claim, ok
}

// Subject is the authenticated subject id, or "" before Authenticate.
func Subject(c *gin.Context) string {
	claim, _ := Identity(c)
	return claim.Subject
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
