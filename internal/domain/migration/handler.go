package migration

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"assetvault/internal/domain/storage"
	"assetvault/internal/middleware"
	"assetvault/internal/pkg/response"
)

type Handler struct {
	service  *Service
	settings *storage.SettingsRepository
}

func NewHandler(service *Service, settings *storage.SettingsRepository) *Handler {
	return &Handler{service: service, settings: settings}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/migration")
	{
		g.GET("/stats", h.GetStats)
		g.GET("/pending", h.ListToMigrate)
		g.POST("/versions/:id", h.Migrate)
		g.POST("/cleanup", h.Cleanup)
		g.GET("/backfill", h.ListNeedingBackfill)
		g.POST("/versions/:id/public-url", h.SetPublicURL)
	}
}

// GetStats godoc
// @Summary Count versions by storage location
// @Tags Migration
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /migration/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ListToMigrate godoc
// @Summary Page through versions still only on the local backend
// @Tags Migration
// @Produce json
// @Param cursor query string false "last version id of the previous page"
// @Param limit query int false "page size"
// @Success 200 {object} map[string]interface{}
// @Router /migration/pending [get]
func (h *Handler) ListToMigrate(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.service.ListToMigrate(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

// Migrate godoc
// @Summary Copy one version to the external backend
// @Description Uses the external settings currently configured.
// @Tags Migration
// @Produce json
// @Param id path string true "version id"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /migration/versions/{id} [post]
func (h *Handler) Migrate(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	v, err := h.service.MigrateToExternal(c.Request.Context(), c.Param("id"), settings.External())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

type cleanupRequest struct {
	VersionIDs []string `json:"version_ids" binding:"required"`
}

// Cleanup godoc
// @Summary Drop local copies of migrated versions
// @Tags Migration
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /migration/cleanup [post]
func (h *Handler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	report := h.service.CleanupMigratedVersions(c.Request.Context(), req.VersionIDs, middleware.ActorID(c))
	response.Success(c, http.StatusOK, report)
}

// ListNeedingBackfill godoc
// @Summary Page through migrated versions without a stamped public URL
// @Tags Migration
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /migration/backfill [get]
func (h *Handler) ListNeedingBackfill(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.service.ListNeedingPublicURLBackfill(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

type publicURLRequest struct {
	URL string `json:"url"`
}

// SetPublicURL godoc
// @Summary Stamp a migrated version's public URL
// @Description An empty url derives it from the configured public base URL.
// @Tags Migration
// @Accept json
// @Produce json
// @Param id path string true "version id"
// @Success 200 {object} map[string]interface{}
// @Router /migration/versions/{id}/public-url [post]
func (h *Handler) SetPublicURL(c *gin.Context) {
	var req publicURLRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}
	v, err := h.service.SetPublicURL(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}
