package folder

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
	folders := r.Group("/folders")
	{
		folders.GET("", h.List)
		folders.GET("/all", h.ListAll)
		folders.GET("/contents", h.ListWithAssets)
		folders.POST("", h.Create)
		folders.PATCH("", h.Update)
		folders.DELETE("", h.Delete)
	}
}

// List godoc
// @Summary List direct child folders
// @Tags Folders
// @Produce json
// @Param parent query string false "parent path, empty for root"
// @Success 200 {object} map[string]interface{}
// @Router /folders [get]
func (h *Handler) List(c *gin.Context) {
	folders, err := h.service.List(c.Request.Context(), c.Query("parent"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, folders)
}

// ListAll godoc
// @Summary List every folder by path
// @Tags Folders
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /folders/all [get]
func (h *Handler) ListAll(c *gin.Context) {
	folders, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, folders)
}

// ListWithAssets godoc
// @Summary List direct child folders with their assets' published URLs
// @Tags Folders
// @Produce json
// @Param parent query string false "parent path, empty for root"
// @Success 200 {object} map[string]interface{}
// @Router /folders/contents [get]
func (h *Handler) ListWithAssets(c *gin.Context) {
	out, err := h.service.ListWithAssets(c.Request.Context(), c.Query("parent"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

type createRequest struct {
	// Path creates at an explicit path; otherwise Label is slugified under Parent.
	Path   string `json:"path"`
	Name   string `json:"name"`
	Parent string `json:"parent"`
	Label  string `json:"label"`
}

// Create godoc
// @Summary Create a folder by path or by label
// @Tags Folders
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /folders [post]
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	var (
		f   *Folder
		err error
	)
	if req.Path != "" {
		f, err = h.service.CreateByPath(c.Request.Context(), req.Path, req.Name, middleware.ActorID(c))
	} else {
		f, err = h.service.CreateByName(c.Request.Context(), req.Parent, req.Label, middleware.ActorID(c))
	}
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, f)
}

type updateRequest struct {
	Path string `json:"path" binding:"required"`
	UpdateInput
}

// Update godoc
// @Summary Rename or relocate a folder
// @Tags Folders
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /folders [patch]
func (h *Handler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	f, err := h.service.Update(c.Request.Context(), req.Path, req.UpdateInput, middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, f)
}

// Delete godoc
// @Summary Delete a folder and everything below it
// @Tags Folders
// @Produce json
// @Param path query string true "folder path"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /folders [delete]
func (h *Handler) Delete(c *gin.Context) {
	res, err := h.service.Delete(c.Request.Context(), c.Query("path"), middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
