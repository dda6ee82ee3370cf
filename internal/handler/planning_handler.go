package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/planordo/planning-api/internal/models"
	"github.com/planordo/planning-api/internal/service"
	appErrors "github.com/planordo/planning-api/pkg/errors"
	"github.com/planordo/planning-api/pkg/response"
)

// PlanningHandler exposes the arbitrated read models.
type PlanningHandler struct {
	arbitration *service.ArbitrationService
}

// NewPlanningHandler constructs the handler.
func NewPlanningHandler(arbitration *service.ArbitrationService) *PlanningHandler {
	return &PlanningHandler{arbitration: arbitration}
}

// Grid returns the coordinator planning grid for one week.
func (h *PlanningHandler) Grid(c *gin.Context) {
	weekStart, err := parseDate(c.Query("week"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week parameter, expected YYYY-MM-DD"))
		return
	}

	grid, err := h.arbitration.ResolveGrid(c.Request.Context(), weekStart)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid)
}

// TrainerWeek returns one trainer's arbitrated week.
func (h *PlanningHandler) TrainerWeek(c *gin.Context) {
	weekStart, err := parseDate(c.Query("week"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week parameter, expected YYYY-MM-DD"))
		return
	}

	week, err := h.arbitration.ResolveWeek(c.Request.Context(), c.Param("id"), weekStart)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, week)
}

// Slot returns the arbitration result for one trainer/slot/date.
func (h *PlanningHandler) Slot(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date parameter, expected YYYY-MM-DD"))
		return
	}
	weekday, ok := models.WeekdayOf(date)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date falls on a weekend"))
		return
	}
	slot := models.Slot(strings.ToUpper(c.Query("slot")))
	if slot != models.SlotMorning && slot != models.SlotAfternoon {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid slot parameter"))
		return
	}

	resolved, err := h.arbitration.Resolve(c.Request.Context(), c.Param("id"), weekday, slot, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolved)
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}
