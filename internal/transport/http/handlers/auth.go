package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/transport/http/middleware"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

// AuthHandler exposes credential lifecycle endpoints.
type AuthHandler struct {
	sessions *usecase.SessionService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(sessions *usecase.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of credential-bearing endpoints.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, authRequired gin.HandlerFunc, limits map[string]gin.HandlerFunc) {
	r.POST("/register", withLimit(limits["register"], h.register)...)
	r.POST("/login", withLimit(limits["login"], h.login)...)
	r.POST("/mfa/verify", h.verifyMFA)
	r.POST("/password-reset", withLimit(limits["password-reset"], h.passwordReset)...)
	r.POST("/verify-email", h.verifyEmail)

	if authRequired != nil {
		r.POST("/mfa/enable", authRequired, h.enableMFA)
		r.POST("/mfa/disable", authRequired, h.disableMFA)
	}
}

func withLimit(limit gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limit, handler}
}

func clientInfo(c *gin.Context) usecase.ClientInfo {
	reqCtx := middleware.GetRequestContext(c)
	return usecase.ClientInfo{
		IPAddress: reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
	}
}

var loginErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusUnauthorized, Message: "invalid email or password"},
	{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"},
	{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid token"},
}

// Login godoc
// @Summary Authenticate with email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} LoginResponse
// @Success 202 {object} MFARequiredResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.sessions.LoginWithSession(c.Request.Context(), req.Email, req.Password, clientInfo(c))
	if err != nil {
		var mfaErr *usecase.MFARequiredError
		if errors.As(err, &mfaErr) {
			c.JSON(http.StatusAccepted, MFARequiredResponse{
				MFARequired:  true,
				ChallengeID:  mfaErr.Challenge.ChallengeID,
				FactorID:     mfaErr.Challenge.FactorID,
				Method:       string(mfaErr.Challenge.Method),
				MaskedTarget: mfaErr.Challenge.MaskedTarget,
				ExpiresAt:    mfaErr.Challenge.ExpiresAt,
				AccessToken:  mfaErr.AccessToken,
			})
			return
		}

		RespondWithMappedError(c, err, loginErrorCases, http.StatusUnauthorized, "authentication failed")
		return
	}

	c.JSON(http.StatusOK, NewLoginResponse(result))
}

// Register godoc
// @Summary Register a new account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration payload"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	user, err := h.sessions.Register(c.Request.Context(), req.Email, req.Password, clientInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailAlreadyInUse, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
		}, http.StatusBadRequest, "registration failed")
		return
	}

	resp := RegisterResponse{
		User:                 NewUserPayload(user),
		RequiresVerification: user.Status == domain.UserStatusPendingVerification,
	}
	if resp.RequiresVerification {
		resp.Message = "confirmation email sent"
	}

	c.JSON(http.StatusCreated, resp)
}

// VerifyMFA godoc
// @Summary Complete a second-factor challenge
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body MFAVerifyRequest true "Challenge verification payload"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/mfa/verify [post]
func (h *AuthHandler) verifyMFA(c *gin.Context) {
	var req MFAVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	result, err := h.sessions.VerifyMFAChallengeWithSession(
		c.Request.Context(), req.AccessToken, req.FactorID, req.ChallengeID, req.Code, clientInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid verification code"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "challenge expired, restart login"},
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid challenge token"},
			{Err: usecase.ErrUserNotAuthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
		}, http.StatusUnauthorized, "verification failed")
		return
	}

	c.JSON(http.StatusOK, NewLoginResponse(result))
}

func (h *AuthHandler) enableMFA(c *gin.Context) {
	// Body is optional; factor type defaults to TOTP.
	var req MFAEnableRequest
	_ = c.ShouldBindJSON(&req)

	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	factor, err := h.sessions.EnableMFA(c.Request.Context(), token, req.FactorType, clientInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotAuthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
		}, http.StatusBadGateway, "could not enroll factor")
		return
	}

	c.JSON(http.StatusOK, MFAEnableResponse{
		FactorID:   factor.ID,
		FactorType: factor.Type,
		Status:     factor.Status,
	})
}

func (h *AuthHandler) disableMFA(c *gin.Context) {
	var req MFADisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "factor_id is required"))
		return
	}

	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.sessions.DisableMFA(c.Request.Context(), token, req.FactorID, clientInfo(c)); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotAuthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
		}, http.StatusBadGateway, "could not remove factor")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "factor removed"})
}

// PasswordReset godoc
// @Summary Request a password reset email
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body PasswordResetRequest true "Reset payload"
// @Success 200 {object} MessageResponse
// @Router /api/v1/auth/password-reset [post]
func (h *AuthHandler) passwordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	if err := h.sessions.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusBadRequest, "could not process reset request")
		return
	}

	// Same response whether or not the account exists.
	c.JSON(http.StatusOK, MessageResponse{Message: "if the account exists, a reset email has been sent"})
}

func (h *AuthHandler) verifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	user, err := h.sessions.VerifyEmail(c.Request.Context(), req.Token, clientInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailAlreadyVerified, Status: http.StatusConflict, Message: "email already verified"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusGone, Message: "verification token expired"},
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "invalid verification token"},
		}, http.StatusBadRequest, "verification failed")
		return
	}

	c.JSON(http.StatusOK, RegisterResponse{
		User:    NewUserPayload(user),
		Message: "email verified",
	})
}
