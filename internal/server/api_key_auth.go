package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/tokenledger/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	obscontext "github.com/smallbiznis/tokenledger/internal/observability/context"
)

const contextPrincipalKey = "principal"

// APIKeyRequired authenticates requests with a bearer API key. With API
// auth disabled every request acts as an admin system caller.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := obscontext.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())

		if !s.cfg.Auth.Enabled {
			principal := &apikeydomain.Principal{KeyID: "system", Name: "system", Role: apikeydomain.RoleAdmin}
			c.Set(contextPrincipalKey, principal)
			c.Request = c.Request.WithContext(obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), ""))
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.apiKeySvc.Authenticate(ctx, parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		c.Request = c.Request.WithContext(obscontext.WithActor(ctx, string(auditdomain.ActorTypeAPIKey), principal.KeyID))
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (*apikeydomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*apikeydomain.Principal)
	return principal, ok && principal != nil
}

// actorLabel names the caller in price, rate and credit history rows.
func actorLabel(c *gin.Context) string {
	principal, ok := principalFromContext(c)
	if !ok {
		return "unknown"
	}
	if principal.KeyID == "system" {
		return "system"
	}
	return "api_key:" + principal.KeyID
}
