// Package middleware provides HTTP middleware for the CMS coordination core.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/registry"
)

const (
	// ContextComputerID is the gin context key an authenticated agent's
	// computer_id is placed under by RequireAgentToken.
	ContextComputerID = "computerID"
	// ContextAgentID is the gin context key the authenticated agent's
	// agent_id is placed under by RequireAgentToken.
	ContextAgentID = "agentID"

	agentIDHeader = "X-Agent-ID"
)

// AgentAuth guards the agent-facing HTTP surface (hardware-info,
// report-error, check-update, and any other endpoint an already-bootstrapped
// agent calls outside the WebSocket connection) with the same agent token
// the Session Hub verifies at WebSocket admission.
type AgentAuth struct {
	registry *registry.Registry
}

// NewAgentAuth builds an AgentAuth over reg.
func NewAgentAuth(reg *registry.Registry) *AgentAuth {
	return &AgentAuth{registry: reg}
}

// RequireAgentToken validates the X-Agent-ID header against the bearer
// token's hash and places the resolved computer_id / agent_id in gin
// context for downstream handlers.
func (a *AgentAuth) RequireAgentToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID := c.GetHeader(agentIDHeader)
		if agentID == "" {
			apperrors.AbortWithError(c, apperrors.ValidationFailed("missing "+agentIDHeader+" header"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			apperrors.AbortWithError(c, apperrors.InvalidCredential("missing or malformed Authorization header"))
			return
		}

		computerID, err := a.registry.VerifyAgentToken(c.Request.Context(), agentID, parts[1])
		if err != nil {
			logger.Agent().Warn().Str("agent_id", agentID).Msg("agent token verification failed")
			apperrors.HandleError(c, err)
			c.Abort()
			return
		}

		c.Set(ContextComputerID, computerID)
		c.Set(ContextAgentID, agentID)
		c.Next()
	}
}

// ComputerID reads the computer_id placed by RequireAgentToken.
func ComputerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextComputerID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// AgentID reads the agent_id placed by RequireAgentToken.
func AgentID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextAgentID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
