package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/transport/http/middleware"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

const defaultEventLimit = 50

// SecurityHandler serves the audit trail and suspicious-activity views.
type SecurityHandler struct {
	security *usecase.SecurityService
}

// NewSecurityHandler constructs SecurityHandler.
func NewSecurityHandler(security *usecase.SecurityService) *SecurityHandler {
	return &SecurityHandler{security: security}
}

// RegisterRoutes binds security routes onto an authenticated group.
func (h *SecurityHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/security/events", h.events)
	r.GET("/security/alerts", h.alerts)
}

// Events godoc
// @Summary List recent security events for the authenticated user
// @Tags Security
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum events to return"
// @Success 200 {object} SecurityEventsResponse
// @Router /api/v1/auth/security/events [get]
func (h *SecurityHandler) events(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := h.security.RecentEvents(c.Request.Context(), userID, limit)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}

	payload := make([]SecurityEventPayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, newSecurityEventPayload(event))
	}

	c.JSON(http.StatusOK, SecurityEventsResponse{Events: payload})
}

// Alerts godoc
// @Summary Evaluate suspicious-activity heuristics for the authenticated user
// @Tags Security
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SecurityAlertsResponse
// @Router /api/v1/auth/security/alerts [get]
func (h *SecurityHandler) alerts(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	alerts, err := h.security.CheckSuspiciousActivity(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}

	payload := make([]SecurityAlertPayload, 0, len(alerts))
	for _, alert := range alerts {
		payload = append(payload, SecurityAlertPayload{
			Severity: string(alert.Severity),
			Reason:   alert.Reason,
			Count:    alert.Count,
			Window:   alert.Window.String(),
			RaisedAt: alert.RaisedAt,
		})
	}

	c.JSON(http.StatusOK, SecurityAlertsResponse{Alerts: payload})
}

func newSecurityEventPayload(event domain.SecurityEvent) SecurityEventPayload {
	return SecurityEventPayload{
		ID:        event.ID,
		Type:      string(event.Type),
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Details:   event.Details,
		IPAddress: event.IPAddress,
	}
}
