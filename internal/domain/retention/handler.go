package retention

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"assetvault/internal/domain/storage"
	"assetvault/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/retention/:backend")
	{
		g.GET("", h.ListPending)
		g.POST("/process", h.ProcessExpired)
		g.POST("/cancel", h.CancelPending)
	}
}

// ListPending godoc
// @Summary Inspect a backend's pending deletions
// @Tags Retention
// @Produce json
// @Param backend path string true "local or external"
// @Param limit query int false "max rows"
// @Param expired query bool false "only rows past their grace period"
// @Success 200 {object} map[string]interface{}
// @Router /retention/{backend} [get]
func (h *Handler) ListPending(c *gin.Context) {
	backend, err := storage.ParseBackend(c.Param("backend"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	onlyExpired, _ := strconv.ParseBool(c.Query("expired"))

	rows, err := h.service.ListPending(c.Request.Context(), backend, limit, onlyExpired)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

type processRequest struct {
	BatchSize int  `json:"batch_size"`
	ForceAll  bool `json:"force_all"`
}

// ProcessExpired godoc
// @Summary Hard-delete expired pending deletions
// @Description External rows are dequeued and their keys returned; deleting those objects is the caller's job.
// @Tags Retention
// @Accept json
// @Produce json
// @Param backend path string true "local or external"
// @Success 200 {object} map[string]interface{}
// @Router /retention/{backend}/process [post]
func (h *Handler) ProcessExpired(c *gin.Context) {
	backend, err := storage.ParseBackend(c.Param("backend"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	result, err := h.service.ProcessExpired(c.Request.Context(), backend, req.BatchSize, req.ForceAll)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

type cancelRequest struct {
	StorageRef string `json:"storage_ref" binding:"required"`
}

// CancelPending godoc
// @Summary Take a storage reference out of the deletion queue
// @Tags Retention
// @Accept json
// @Produce json
// @Param backend path string true "local or external"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /retention/{backend}/cancel [post]
func (h *Handler) CancelPending(c *gin.Context) {
	backend, err := storage.ParseBackend(c.Param("backend"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	row, err := h.service.CancelPending(c.Request.Context(), backend, req.StorageRef)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, row)
}
