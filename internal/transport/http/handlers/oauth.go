package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arclightapps/identity-gateway/internal/transport/http/middleware"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

// OAuthHandler exposes federated sign-in endpoints.
type OAuthHandler struct {
	oauth *usecase.OAuthService
}

// NewOAuthHandler constructs OAuthHandler.
func NewOAuthHandler(oauth *usecase.OAuthService) *OAuthHandler {
	return &OAuthHandler{oauth: oauth}
}

// RegisterRoutes binds federated sign-in routes. Sign-in is anonymous; unlink
// requires an established session.
func (h *OAuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/oauth/signin", h.signIn)
	protected.POST("/oauth/unlink", h.unlink)
}

// SignIn godoc
// @Summary Exchange an OAuth authorization code for a session
// @Tags OAuth
// @Accept json
// @Produce json
// @Param request body OAuthSignInRequest true "Authorization code payload"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/oauth/signin [post]
func (h *OAuthHandler) signIn(c *gin.Context) {
	var req OAuthSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "provider and code are required"))
		return
	}

	result, err := h.oauth.SignInWithSession(c.Request.Context(), req.Provider, req.Code, req.RedirectURI, clientInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "authorization code rejected"},
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "identity token rejected"},
		}, http.StatusBadGateway, "federated sign-in failed")
		return
	}

	c.JSON(http.StatusOK, NewLoginResponse(result))
}

func (h *OAuthHandler) unlink(c *gin.Context) {
	var req OAuthUnlinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "provider is required"))
		return
	}

	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.oauth.Unlink(c.Request.Context(), token, req.Provider, clientInfo(c)); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotAuthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
		}, http.StatusBadGateway, "could not unlink provider")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "provider unlinked"})
}
