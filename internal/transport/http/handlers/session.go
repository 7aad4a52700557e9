package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arclightapps/identity-gateway/internal/transport/http/middleware"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

// SessionHandler exposes endpoints operating on an established session.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session routes onto an authenticated group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.me)
	r.POST("/logout", h.logout)
}

// Me godoc
// @Summary Return the authenticated user
// @Tags Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserPayload
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *SessionHandler) me(c *gin.Context) {
	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.sessions.CurrentUser(c.Request.Context(), token)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotAuthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
		}, http.StatusBadGateway, "could not load user")
		return
	}
	if user == nil {
		// Token was syntactically valid but the backing session is gone.
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "session expired"))
		return
	}

	c.JSON(http.StatusOK, NewUserPayload(user))
}

// Logout godoc
// @Summary Terminate the current session
// @Tags Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse
// @Router /api/v1/auth/logout [post]
func (h *SessionHandler) logout(c *gin.Context) {
	token, _ := middleware.GetAccessToken(c)

	if err := h.sessions.Logout(c.Request.Context(), token, clientInfo(c)); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusBadGateway, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "signed out"})
}
