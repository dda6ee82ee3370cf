package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planordo/planning-api/internal/service"
	appErrors "github.com/planordo/planning-api/pkg/errors"
	"github.com/planordo/planning-api/pkg/response"
)

// sessionHeader carries the caller's editor session for lock-gated writes.
const sessionHeader = "X-Session-ID"

// AvailabilityHandler exposes recurring availability declarations.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// List returns a trainer's declaration set.
func (h *AvailabilityHandler) List(c *gin.Context) {
	entries, err := h.availability.ListForTrainer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}

type redeclareRequest struct {
	Slots []service.AvailabilitySlotRequest `json:"slots"`
}

// Redeclare replaces a trainer's declaration set.
func (h *AvailabilityHandler) Redeclare(c *gin.Context) {
	var req redeclareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload"))
		return
	}

	entries, err := h.availability.Redeclare(c.Request.Context(), c.Param("id"), req.Slots)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}

// Validate marks a trainer's declarations as admin-validated.
func (h *AvailabilityHandler) Validate(c *gin.Context) {
	err := h.availability.Validate(c.Request.Context(), c.GetHeader(sessionHeader), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
