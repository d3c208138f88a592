package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	obscontext "github.com/smallbiznis/seatly/internal/observability/context"
)

// Identity headers set by the authenticating gateway in front of the API.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

// ActorMiddleware trusts the gateway identity headers and stores the caller
// in the request context. Requests without X-User-Id pass through
// anonymously; malformed identities are rejected.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if rawID == "" {
			c.Next()
			return
		}

		userID, err := snowflake.ParseString(rawID)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := actorcontext.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		if role == "" {
			role = actorcontext.RoleCustomer
		}
		if !role.Valid() {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := actorcontext.WithActor(c.Request.Context(), actorcontext.Actor{
			UserID: userID,
			Role:   role,
			Email:  c.GetHeader(HeaderUserEmail),
		})
		ctx = obscontext.WithActor(ctx, "user", userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireActor rejects anonymous requests.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := actorcontext.FromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
