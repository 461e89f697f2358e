package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/util"
)

// AuthMiddleware requires a valid token and stores the user id in the context
func AuthMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request)
		if token == "" {
			util.RespondUnauthorized(c, "no token provided")
			c.Abort()
			return
		}

		userID, err := validator.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token expired"
			}
			util.RespondUnauthorized(c, msg)
			c.Abort()
			return
		}

		c.Set(util.ContextUserIDKey, userID)
		c.Next()
	}
}
