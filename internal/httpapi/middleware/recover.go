package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lifecoachhq/coachapi/internal/common"
)

// Recovery converts panics into 500 envelopes instead of dropped
// connections.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered: %v", r)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
