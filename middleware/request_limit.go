package middleware

import (
	"net/http"

	"documind/utils"

	"github.com/gin-gonic/gin"
)

// RequestSizeLimit rejects bodies over maxSize. A declared Content-Length is
// checked up front; the body reader is capped for chunked uploads.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithTooLarge(c, maxSize, c.Request.ContentLength)
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
