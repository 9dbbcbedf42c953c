package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/auth"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/validator"
)

// UserHandler implements the admin-only user management surface: User is
// mutated only by administrative operations (spec's own wording for the
// User entity).
type UserHandler struct {
	users  db.UserRepo
	auth   *auth.Service
	hasher *credential.Hasher
}

// NewUserHandler builds a UserHandler over its dependencies.
func NewUserHandler(users db.UserRepo, authService *auth.Service, hasher *credential.Hasher) *UserHandler {
	return &UserHandler{users: users, auth: authService, hasher: hasher}
}

// ListUsers handles GET /admin/users.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser handles POST /admin/users.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	passwordHash, err := h.hasher.HashToken(req.Password)
	if err != nil {
		apperrors.HandleError(c, apperrors.InternalServer("failed to hash password"))
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Username, passwordHash, req.Role)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// UpdateUser handles PUT /admin/users/:id. Deactivating a user
// (active=false) immediately revokes all of its refresh tokens, per the
// User entity's invariant.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateUserRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	if req.Password != nil {
		hash, err := h.hasher.HashToken(*req.Password)
		if err != nil {
			apperrors.HandleError(c, apperrors.InternalServer("failed to hash password"))
			return
		}
		req.Password = &hash
	}

	if err := h.users.UpdateUser(c.Request.Context(), userID, &req); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	if req.Active != nil && !*req.Active {
		if err := h.auth.RevokeAll(c.Request.Context(), userID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes mounts the user management surface under rg, which is
// expected to already be guarded by access-bearer + admin-role middleware.
func (h *UserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users", h.ListUsers)
	rg.POST("/users", h.CreateUser)
	rg.PUT("/users/:id", h.UpdateUser)
}
