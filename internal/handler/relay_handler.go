package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planordo/planning-api/internal/service"
	appErrors "github.com/planordo/planning-api/pkg/errors"
	"github.com/planordo/planning-api/pkg/response"
)

// RelayHandler exposes the command relay poll endpoint.
type RelayHandler struct {
	relay *service.CommandRelay
}

// NewRelayHandler constructs the handler.
func NewRelayHandler(relay *service.CommandRelay) *RelayHandler {
	return &RelayHandler{relay: relay}
}

// Poll returns the commands the calling view has not yet consumed. Views
// identify themselves with a stable origin id so each one receives every
// broadcast, regardless of who polled first.
func (h *RelayHandler) Poll(c *gin.Context) {
	origin := c.Query("origin")
	if origin == "" {
		origin = c.GetHeader(sessionHeader)
	}
	if origin == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "origin query parameter or X-Session-ID header is required"))
		return
	}
	commands, err := h.relay.Poll(c.Request.Context(), origin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, commands)
}
