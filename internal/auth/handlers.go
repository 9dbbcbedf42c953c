package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

const refreshCookieName = "refresh_token"

// Handler wires the Auth Service into gin routes.
type Handler struct {
	service *Service
}

// NewHandler builds a Handler over service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Login handles POST /auth/login. The refresh token is never returned in
// the response body; it is set as an HTTP-only, Secure, SameSite=Strict
// cookie.
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.ValidationFailed(err.Error()))
		return
	}

	pair, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken, "expiresIn": pair.ExpiresIn})
}

// Refresh handles POST /auth/refresh-token, rotating the token presented
// via the refresh_token cookie and replacing it.
func (h *Handler) Refresh(c *gin.Context) {
	presented, err := c.Cookie(refreshCookieName)
	if err != nil || presented == "" {
		apperrors.AbortWithError(c, apperrors.MalformedToken())
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), presented)
	if err != nil {
		h.clearRefreshCookie(c)
		apperrors.HandleError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken, "expiresIn": pair.ExpiresIn})
}

// Logout handles POST /auth/logout, revoking the refresh_token cookie's
// token and clearing the cookie.
func (h *Handler) Logout(c *gin.Context) {
	presented, err := c.Cookie(refreshCookieName)
	if err == nil && presented != "" {
		if _, err := h.service.Revoke(c.Request.Context(), presented); err != nil {
			apperrors.HandleError(c, err)
			return
		}
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := UserID(c)
	if !ok {
		apperrors.AbortWithError(c, apperrors.InvalidCredential("not authenticated"))
		return
	}

	user, err := h.service.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	maxAge := int(h.service.RefreshTTL().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, maxAge, "/", "", true, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/", "", true, true)
}

// RegisterRoutes mounts the Auth Service's HTTP surface under rg.
// accessAuth guards the access-bearer-only /me route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, accessAuth gin.HandlerFunc) {
	rg.POST("/login", h.Login)
	rg.POST("/refresh-token", h.Refresh)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", accessAuth, h.Me)
}
