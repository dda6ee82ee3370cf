package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planordo/planning-api/internal/service"
	appErrors "github.com/planordo/planning-api/pkg/errors"
	"github.com/planordo/planning-api/pkg/response"
)

// ExceptionHandler exposes the exception record workflow.
type ExceptionHandler struct {
	exceptions *service.ExceptionService
}

// NewExceptionHandler constructs the handler.
func NewExceptionHandler(exceptions *service.ExceptionService) *ExceptionHandler {
	return &ExceptionHandler{exceptions: exceptions}
}

// ListByTrainer returns a trainer's exception records.
func (h *ExceptionHandler) ListByTrainer(c *gin.Context) {
	records, err := h.exceptions.ListByTrainer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records)
}

// Create stores a new pending exception record.
func (h *ExceptionHandler) Create(c *gin.Context) {
	var req service.CreateExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception payload"))
		return
	}

	record, err := h.exceptions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Approve transitions a pending record to approved.
func (h *ExceptionHandler) Approve(c *gin.Context) {
	record, err := h.exceptions.Approve(c.Request.Context(), c.GetHeader(sessionHeader), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// Delete removes a record, reversing an approved record's visibility effect.
func (h *ExceptionHandler) Delete(c *gin.Context) {
	if err := h.exceptions.Delete(c.Request.Context(), c.GetHeader(sessionHeader), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
