package middleware

import (
	"meeting_relay/pkg/errors"

	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем есть ли ошибки
		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			c.JSON(errors.HTTPStatusFromError(err.Err), gin.H{
				"error": err.Error(),
			})
		}
	}
}
