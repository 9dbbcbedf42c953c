// Package handlers wires the CMS coordination core's components into gin
// routes: agent bootstrap, agent-bearer endpoints, and the admin surface.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/mfa"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/middleware"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/registry"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/versioncatalog"
)

// BootstrapNotifier is the narrow view of the Session Hub the agent
// bootstrap flow depends on to reach the admin room, satisfied
// structurally by *realtime.Hub.
type BootstrapNotifier interface {
	NotifyNewAgentMFA(agentID string, code string, position models.PositionInfo)
	NotifyAgentRegistered(agentID string, computerID int64)
}

// AgentHandler implements the agent-facing HTTP surface: bootstrap
// (identify / verify-mfa) and the agent-bearer endpoints (hardware-info,
// report-error, check-update, package download).
type AgentHandler struct {
	registry  *registry.Registry
	computers db.ComputerRepo
	mfa       *mfa.Broker
	hub       BootstrapNotifier
	catalog   *versioncatalog.Catalog
	agentAuth *middleware.AgentAuth
}

// NewAgentHandler builds an AgentHandler over its dependencies.
func NewAgentHandler(reg *registry.Registry, computers db.ComputerRepo, broker *mfa.Broker, hub BootstrapNotifier, catalog *versioncatalog.Catalog, agentAuth *middleware.AgentAuth) *AgentHandler {
	return &AgentHandler{registry: reg, computers: computers, mfa: broker, hub: hub, catalog: catalog, agentAuth: agentAuth}
}

// Identify handles POST /agent/identify. A previously bootstrapped agent
// (one already holding an agent_token) requesting the same or a new
// position is refreshed immediately, skipping MFA. A never-seen agent_id
// triggers MFA issuance and an admin notification.
func (h *AgentHandler) Identify(c *gin.Context) {
	var req models.IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed(err.Error()))
		return
	}
	if req.Position == nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed("position is required"))
		return
	}

	ctx := c.Request.Context()
	existing, err := h.registry.FindByAgentID(ctx, req.AgentID)
	if err == nil && existing.AgentTokenHash != nil {
		_, token, err := h.registry.RegisterOrRefresh(ctx, req.AgentID, *req.Position)
		if err != nil {
			h.respondPositionOrError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.IdentifyResponse{Status: models.IdentifyStatusSuccess, AgentToken: token})
		return
	}

	if _, err := h.registry.ValidatePosition(ctx, req.AgentID, *req.Position); err != nil {
		h.respondPositionOrError(c, err)
		return
	}

	code, err := h.mfa.Issue(ctx, req.AgentID, *req.Position)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	h.hub.NotifyNewAgentMFA(req.AgentID, code, *req.Position)
	c.JSON(http.StatusOK, models.IdentifyResponse{Status: models.IdentifyStatusMFARequired})
}

// respondPositionOrError maps PositionOutOfRange/PositionOccupied to the
// identify endpoint's position_error envelope; any other error goes
// through the generic error boundary.
func (h *AgentHandler) respondPositionOrError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok &&
		(appErr.Code == apperrors.ErrCodePositionOutOfRng || appErr.Code == apperrors.ErrCodePositionOccupied) {
		c.JSON(http.StatusOK, models.IdentifyResponse{Status: models.IdentifyStatusPositionError, Message: appErr.Message})
		return
	}
	apperrors.HandleError(c, err)
}

// VerifyMFA handles POST /agent/verify-mfa.
func (h *AgentHandler) VerifyMFA(c *gin.Context) {
	var req models.VerifyMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed(err.Error()))
		return
	}

	ctx := c.Request.Context()
	ok, position, err := h.mfa.Verify(ctx, req.AgentID, req.MFACode)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if !ok {
		apperrors.AbortWithError(c, apperrors.InvalidCredential("invalid or expired MFA code"))
		return
	}

	computerID, token, err := h.registry.RegisterOrRefresh(ctx, req.AgentID, position)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.hub.NotifyAgentRegistered(req.AgentID, computerID)
	c.JSON(http.StatusOK, models.VerifyMFAResponse{Status: models.IdentifyStatusSuccess, ComputerID: computerID, AgentToken: token})
}

// HardwareInfo handles POST /agent/hardware-info.
func (h *AgentHandler) HardwareInfo(c *gin.Context) {
	agentID, ok := middleware.AgentID(c)
	if !ok {
		apperrors.AbortWithError(c, apperrors.InvalidCredential("not authenticated"))
		return
	}

	var req models.HardwareInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed(err.Error()))
		return
	}

	if err := h.computers.UpdateHardwareInfo(c.Request.Context(), agentID, req.HardwareInfo); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReportError handles POST /agent/report-error.
func (h *AgentHandler) ReportError(c *gin.Context) {
	agentID, ok := middleware.AgentID(c)
	if !ok {
		apperrors.AbortWithError(c, apperrors.InvalidCredential("not authenticated"))
		return
	}

	var req models.ReportErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed(err.Error()))
		return
	}

	record := models.ErrorRecord{
		ErrorID:      uuid.NewString(),
		ErrorType:    req.ErrorType,
		ErrorMessage: req.ErrorMessage,
		ErrorDetails: req.ErrorDetails,
		ReportedAt:   time.Now(),
	}
	if err := h.computers.AppendError(c.Request.Context(), agentID, record); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckUpdate handles GET /agent/check-update.
func (h *AgentHandler) CheckUpdate(c *gin.Context) {
	current := c.Query("current_version")
	v, err := h.catalog.LatestStableNewerThan(c.Request.Context(), current)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if v == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, models.CheckUpdateResponse{
		Version:        v.Version,
		DownloadURL:    v.DownloadURL,
		ChecksumSHA256: v.ChecksumSHA256,
		Notes:          v.Notes,
	})
}

// ServePackage handles GET /agent/agent-packages/:filename.
func (h *AgentHandler) ServePackage(c *gin.Context) {
	path, err := h.catalog.Serve(c.Param("filename"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.FileAttachment(path, c.Param("filename"))
}

// RegisterRoutes mounts the agent bootstrap and agent-bearer routes under
// rg, which is expected to be rooted at /agent.
func (h *AgentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/identify", h.Identify)
	rg.POST("/verify-mfa", h.VerifyMFA)

	authed := rg.Group("", h.agentAuth.RequireAgentToken())
	authed.POST("/hardware-info", h.HardwareInfo)
	authed.POST("/report-error", h.ReportError)
	authed.GET("/check-update", h.CheckUpdate)
	authed.GET("/agent-packages/:filename", h.ServePackage)
}

// parseID parses a positive int64 path parameter, aborting the request on
// failure.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		apperrors.AbortWithError(c, apperrors.ValidationFailed("invalid "+name))
		return 0, false
	}
	return id, true
}
