package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/identity"
	"github.com/noah-isme/client-portal-api/internal/models"
	"github.com/noah-isme/client-portal-api/pkg/logger"
)

// Context keys holding the resolved identity.
const (
	ContextActorKey       = "currentActor"
	ContextIdentityKey    = "currentIdentity"
	ContextCredentialsKey = "currentCredentials"
)

// ActorFromContext returns the actor resolved for this request.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := value.(models.Actor)
	return actor, ok
}

// IdentityFromContext returns the full resolved identity.
func IdentityFromContext(c *gin.Context) *identity.Identity {
	value, exists := c.Get(ContextIdentityKey)
	if !exists {
		return nil
	}
	id, _ := value.(*identity.Identity)
	return id
}

// SetIdentity stores id on the context.
func SetIdentity(c *gin.Context, id *identity.Identity) {
	c.Set(ContextIdentityKey, id)
	c.Set(ContextActorKey, id.Actor)
	c.Set(logger.ActorKey, id.Actor.ID)
}
