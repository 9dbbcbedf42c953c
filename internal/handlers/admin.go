package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/realtime"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/versioncatalog"
)

const maxUploadMemory = 32 << 20 // multipart in-memory threshold; overflow spills to temp files

// AdminHandler implements the admin-only surface: Version Catalog
// management and fleet statistics.
type AdminHandler struct {
	catalog   *versioncatalog.Catalog
	hub       *realtime.Hub
	users     db.UserRepo
	rooms     db.RoomRepo
	computers db.ComputerRepo
	versions  db.AgentVersionRepo
}

// NewAdminHandler builds an AdminHandler over its dependencies.
func NewAdminHandler(catalog *versioncatalog.Catalog, hub *realtime.Hub, users db.UserRepo, rooms db.RoomRepo, computers db.ComputerRepo, versions db.AgentVersionRepo) *AdminHandler {
	return &AdminHandler{catalog: catalog, hub: hub, users: users, rooms: rooms, computers: computers, versions: versions}
}

// UploadVersion handles POST /admin/agents/versions (multipart).
func (h *AdminHandler) UploadVersion(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed("malformed multipart body"))
		return
	}

	fileHeader, err := c.FormFile("package")
	if err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed("package file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		apperrors.AbortWithError(c, apperrors.InternalServer("failed to open uploaded file"))
		return
	}
	defer file.Close()

	version := c.PostForm("version")
	notes := c.PostForm("notes")

	created, err := h.catalog.Ingest(c.Request.Context(), fileHeader.Filename, version, notes, file)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// SetStable handles PUT /admin/agents/versions/:id.
func (h *AdminHandler) SetStable(c *gin.Context) {
	versionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.SetStableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed(err.Error()))
		return
	}

	if err := h.catalog.SetStable(c.Request.Context(), versionID, req.IsStable); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListVersions handles GET /admin/agents/versions.
func (h *AdminHandler) ListVersions(c *gin.Context) {
	versions, err := h.catalog.ListVersions(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	computers, err := h.computers.ListComputers(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	unresolved, err := h.computers.CountUnresolvedErrors(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	rooms, err := h.rooms.ListRooms(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	users, err := h.users.ListUsers(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	versions, err := h.versions.ListAgentVersions(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatsResponse{
		TotalComputers:          int64(len(computers)),
		ConnectedComputers:      h.hub.ConnectedAgentCount(),
		ComputersWithUnresolved: unresolved,
		TotalRooms:              len(rooms),
		TotalUsers:              len(users),
		TotalAgentVersions:      len(versions),
	})
}

// RegisterRoutes mounts the admin surface under rg, which is expected to
// already be guarded by access-bearer + admin-role middleware.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/agents/versions", h.UploadVersion)
	rg.PUT("/agents/versions/:id", h.SetStable)
	rg.GET("/agents/versions", h.ListVersions)
	rg.GET("/stats", h.Stats)
}
