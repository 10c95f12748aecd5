package upload

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"assetvault/internal/middleware"
	"assetvault/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	uploads := r.Group("/uploads")
	{
		uploads.POST("", h.Start)
		uploads.GET("/:id", h.Get)
		uploads.POST("/:id/finish", h.Finish)
	}
}

// Start godoc
// @Summary Reserve an upload and get the URL to send bytes to
// @Tags Uploads
// @Accept json
// @Produce json
// @Param request body StartInput true "target asset"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /uploads [post]
func (h *Handler) Start(c *gin.Context) {
	var req StartInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	req.Actor = middleware.ActorID(c)

	res, err := h.service.StartUpload(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// Get godoc
// @Summary Inspect an upload intent
// @Tags Uploads
// @Produce json
// @Param id path string true "intent id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /uploads/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	intent, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, intent)
}

// Finish godoc
// @Summary Commit uploaded bytes as a new published version
// @Tags Uploads
// @Accept json
// @Produce json
// @Param id path string true "intent id"
// @Param request body FinishInput true "upload result or client-reported metadata"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 410 {object} map[string]interface{}
// @Router /uploads/{id}/finish [post]
func (h *Handler) Finish(c *gin.Context) {
	var req FinishInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}
	req.IntentID = c.Param("id")
	req.Actor = middleware.ActorID(c)

	res, err := h.service.FinishUpload(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
