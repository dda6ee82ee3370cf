package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planordo/planning-api/internal/service"
	appErrors "github.com/planordo/planning-api/pkg/errors"
	"github.com/planordo/planning-api/pkg/response"
)

// SessionHandler exposes the admin session coordinator.
type SessionHandler struct {
	sessions *service.SessionCoordinator
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions *service.SessionCoordinator) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type registerSessionRequest struct {
	AdminID string `json:"admin_id" binding:"required"`
	View    string `json:"view"`
}

// Register opens a session for an admin.
func (h *SessionHandler) Register(c *gin.Context) {
	var req registerSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload"))
		return
	}

	session, err := h.sessions.Register(c.Request.Context(), req.AdminID, req.View)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Heartbeat refreshes a session.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	if err := h.sessions.Heartbeat(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List returns the live sessions ordered by rank.
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.ListSessions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions)
}

type claimLockRequest struct {
	EntityID string `json:"entity_id" binding:"required"`
}

// ClaimLock requests the soft lock on an entity.
func (h *SessionHandler) ClaimLock(c *gin.Context) {
	var req claimLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lock payload"))
		return
	}

	if err := h.sessions.ClaimLock(c.Request.Context(), c.Param("id"), req.EntityID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReleaseLock drops the session's current lock.
func (h *SessionHandler) ReleaseLock(c *gin.Context) {
	if err := h.sessions.ReleaseLock(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
