package actorcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a role the authorization model knows about.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Actor is the authenticated caller resolved at the HTTP boundary.
type Actor struct {
	UserID snowflake.ID
	Role   Role
	Email  string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorContextKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	actor.Email = strings.ToLower(strings.TrimSpace(actor.Email))
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext returns the actor from context, if set.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.UserID == 0 {
		return Actor{}, false
	}
	return actor, true
}

// UserIDFromContext returns the acting user id. The raw "user_id" key is
// honored for callers that only carry a string or int64 value.
func UserIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if actor, ok := FromContext(ctx); ok {
		return actor.UserID, true
	}
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value("user_id").(type) {
	case int64:
		return snowflake.ID(typed), typed != 0
	case snowflake.ID:
		return typed, typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}
