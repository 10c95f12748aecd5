package storage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"assetvault/internal/middleware"
	"assetvault/internal/pkg/response"
)

type Handler struct {
	settings *SettingsRepository
}

func NewHandler(settings *SettingsRepository) *Handler {
	return &Handler{settings: settings}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/storage")
	{
		g.GET("/settings", h.GetSettings)
		g.PUT("/settings", h.UpdateSettings)
	}
}

// GetSettings godoc
// @Summary Current storage backend configuration
// @Tags Storage
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /storage/settings [get]
func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, s)
}

// UpdateSettings godoc
// @Summary Change the backend used by uploads started from now on
// @Tags Storage
// @Accept json
// @Produce json
// @Param request body SettingsUpdate true "fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /storage/settings [put]
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	s, err := h.settings.Set(c.Request.Context(), req, middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, s)
}
