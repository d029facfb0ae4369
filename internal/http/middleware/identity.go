package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the caller's identity. Issuing and checking it is the
// gateway's job; this service only requires it on writes.
const UserHeader = "X-User"

const userKey = "user"

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

// RequireUser rejects requests without an X-User header.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader(UserHeader)
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: UserHeader + " header is required"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// User returns the identity stored by RequireUser.
func User(c *gin.Context) string { return c.GetString(userKey) }
