package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seatly/internal/actorcontext"
)

// authorize gates a route on the caller's role policy for (object, action).
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, ok := actorcontext.FromContext(ctx); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}

		if err := s.authzSvc.Authorize(ctx, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
