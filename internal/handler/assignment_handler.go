package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planordo/planning-api/internal/service"
	appErrors "github.com/planordo/planning-api/pkg/errors"
	"github.com/planordo/planning-api/pkg/response"
)

// AssignmentHandler exposes the weekly planning publication.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// GetWeek returns the stored assignments for one week.
func (h *AssignmentHandler) GetWeek(c *gin.Context) {
	weekStart, err := parseDate(c.Query("week"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week parameter, expected YYYY-MM-DD"))
		return
	}

	assignments, err := h.assignments.GetWeek(c.Request.Context(), weekStart)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments)
}

type replaceWeekRequest struct {
	Slots []service.AssignmentSlotRequest `json:"slots"`
}

// ReplaceWeek supersedes one week's planning wholesale.
func (h *AssignmentHandler) ReplaceWeek(c *gin.Context) {
	weekStart, err := parseDate(c.Query("week"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week parameter, expected YYYY-MM-DD"))
		return
	}

	var req replaceWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid planning payload"))
		return
	}

	assignments, err := h.assignments.ReplaceWeek(c.Request.Context(), c.GetHeader(sessionHeader), weekStart, req.Slots)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments)
}
