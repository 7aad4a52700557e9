package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arclightapps/identity-gateway/internal/transport/http/middleware"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

// BiometricHandler exposes device key enrollment and signature-based login.
type BiometricHandler struct {
	biometric *usecase.BiometricService
}

// NewBiometricHandler constructs BiometricHandler.
func NewBiometricHandler(biometric *usecase.BiometricService) *BiometricHandler {
	return &BiometricHandler{biometric: biometric}
}

// RegisterRoutes binds biometric routes onto an authenticated group.
func (h *BiometricHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/biometric/status", h.status)
	r.POST("/biometric/enroll", h.enroll)
	r.POST("/biometric/challenge", h.challenge)
	r.POST("/biometric/authenticate", h.authenticate)
	r.DELETE("/biometric/enroll", h.unenroll)
}

var biometricErrorCases = []ErrorCase{
	{Err: usecase.ErrBiometricNotAvailable, Status: http.StatusConflict, Message: "biometric authentication is not set up"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "signature rejected"},
	{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "challenge expired"},
	{Err: usecase.ErrUserNotAuthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
}

func (h *BiometricHandler) status(c *gin.Context) {
	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	available, err := h.biometric.Available(c.Request.Context(), token)
	if err != nil {
		RespondWithMappedError(c, err, biometricErrorCases, http.StatusBadGateway, "biometric status unavailable")
		return
	}

	c.JSON(http.StatusOK, BiometricStatusResponse{Available: available})
}

// Enroll godoc
// @Summary Register a device public key for biometric login
// @Tags Biometric
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BiometricEnrollRequest true "Device key payload"
// @Success 200 {object} MessageResponse
// @Router /api/v1/auth/biometric/enroll [post]
func (h *BiometricHandler) enroll(c *gin.Context) {
	var req BiometricEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid enrollment payload"))
		return
	}

	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	err := h.biometric.Enroll(c.Request.Context(), token, req.PublicKeyPEM, req.BiometryType, req.DeviceID, clientInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "public key is not a valid EC key"},
			{Err: usecase.ErrUserNotAuthenticated, Status: http.StatusUnauthorized, Message: "authentication required"},
		}, http.StatusBadGateway, "enrollment failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "biometric key enrolled"})
}

func (h *BiometricHandler) challenge(c *gin.Context) {
	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	nonce, err := h.biometric.Challenge(c.Request.Context(), token)
	if err != nil {
		RespondWithMappedError(c, err, biometricErrorCases, http.StatusBadGateway, "could not issue challenge")
		return
	}

	c.JSON(http.StatusOK, BiometricChallengeResponse{Nonce: nonce})
}

// Authenticate godoc
// @Summary Complete biometric login with a signed challenge
// @Tags Biometric
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BiometricAuthRequest true "Signed challenge payload"
// @Success 200 {object} UserPayload
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/biometric/authenticate [post]
func (h *BiometricHandler) authenticate(c *gin.Context) {
	var req BiometricAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "signature is required"))
		return
	}

	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.biometric.Authenticate(c.Request.Context(), token, req.Signature, clientInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, biometricErrorCases, http.StatusUnauthorized, "biometric authentication failed")
		return
	}

	c.JSON(http.StatusOK, NewUserPayload(user))
}

func (h *BiometricHandler) unenroll(c *gin.Context) {
	token, ok := middleware.GetAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.biometric.Unenroll(c.Request.Context(), token, clientInfo(c)); err != nil {
		RespondWithMappedError(c, err, biometricErrorCases, http.StatusBadGateway, "could not remove biometric key")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "biometric key removed"})
}
