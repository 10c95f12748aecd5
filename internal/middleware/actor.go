package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ActorHeader = "X-Actor-ID"
	actorKey    = "actor_id"
)

// Actor records the opaque actor id supplied by the identity layer in front of
// this service. Requests without one are attributed to "anonymous".
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			actor = "anonymous"
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorID returns the actor recorded by Actor, or "" outside of it.
func ActorID(c *gin.Context) string {
	return c.GetString(actorKey)
}
