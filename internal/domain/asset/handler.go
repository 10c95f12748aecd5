package asset

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"assetvault/internal/domain/storage"
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
	assets := r.Group("/assets")
	{
		assets.GET("", h.ListAssets)
		assets.POST("", h.CreateAsset)
		assets.GET("/lookup", h.GetAsset)
		assets.GET("/published", h.ResolvePublished)
		assets.POST("/commit", h.Commit)
		assets.POST("/rename", h.Rename)
		assets.POST("/move", h.Move)
		assets.POST("/delete", h.Delete)
		assets.GET("/:id/versions", h.ListVersions)
		assets.GET("/:id/events", h.ListEvents)
	}
	versions := r.Group("/versions")
	{
		versions.GET("/:id", h.GetVersion)
		versions.POST("/:id/restore", h.Restore)
	}
}

type assetRequest struct {
	FolderPath string `json:"folder_path"`
	Basename   string `json:"basename" binding:"required"`
}

// CreateAsset godoc
// @Summary Register an asset without content
// @Tags Assets
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /assets [post]
func (h *Handler) CreateAsset(c *gin.Context) {
	var req assetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	a, err := h.service.CreateAsset(c.Request.Context(), req.FolderPath, req.Basename, middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, a)
}

// ListAssets godoc
// @Summary List the assets directly inside a folder
// @Tags Assets
// @Produce json
// @Param folder query string false "folder path, empty for root"
// @Success 200 {object} map[string]interface{}
// @Router /assets [get]
func (h *Handler) ListAssets(c *gin.Context) {
	assets, err := h.service.ListAssets(c.Request.Context(), c.Query("folder"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, assets)
}

// GetAsset godoc
// @Summary Look up an asset by folder and basename
// @Tags Assets
// @Produce json
// @Param folder query string false "folder path"
// @Param basename query string true "basename"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /assets/lookup [get]
func (h *Handler) GetAsset(c *gin.Context) {
	a, err := h.service.GetAsset(c.Request.Context(), c.Query("folder"), c.Query("basename"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, a)
}

// ResolvePublished godoc
// @Summary Resolve an asset's published version and URL
// @Description data is null when the asset, its published version or its stored file is missing.
// @Tags Assets
// @Produce json
// @Param folder query string false "folder path"
// @Param basename query string true "basename"
// @Success 200 {object} map[string]interface{}
// @Router /assets/published [get]
func (h *Handler) ResolvePublished(c *gin.Context) {
	p, err := h.service.ResolvePublished(c.Request.Context(), c.Query("folder"), c.Query("basename"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

type commitRequest struct {
	FolderPath  string `json:"folder_path"`
	Basename    string `json:"basename" binding:"required"`
	Label       string `json:"label"`
	LocalHandle string `json:"local_handle"`
	ExternalKey string `json:"external_key"`
	ExternalURL string `json:"external_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum"`
}

// Commit godoc
// @Summary Publish a new version pointing at already stored content
// @Description Regular uploads go through /uploads; this endpoint registers content that is already in a backend.
// @Tags Assets
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /assets/commit [post]
func (h *Handler) Commit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.Commit(c.Request.Context(), CommitInput{
		FolderPath:  req.FolderPath,
		Basename:    req.Basename,
		Label:       req.Label,
		Ref:         storage.Ref{LocalHandle: req.LocalHandle, ExternalKey: req.ExternalKey, ExternalURL: req.ExternalURL},
		Size:        req.Size,
		ContentType: req.ContentType,
		Checksum:    req.Checksum,
		Actor:       middleware.ActorID(c),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

type renameRequest struct {
	FolderPath  string `json:"folder_path"`
	Basename    string `json:"basename" binding:"required"`
	NewBasename string `json:"new_basename" binding:"required"`
}

// Rename godoc
// @Summary Rename an asset within its folder
// @Tags Assets
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /assets/rename [post]
func (h *Handler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	a, err := h.service.Rename(c.Request.Context(), req.FolderPath, req.Basename, req.NewBasename, middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, a)
}

type moveRequest struct {
	FolderPath   string `json:"folder_path"`
	Basename     string `json:"basename" binding:"required"`
	ToFolderPath string `json:"to_folder_path"`
}

// Move godoc
// @Summary Move an asset to another folder
// @Tags Assets
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /assets/move [post]
func (h *Handler) Move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	a, err := h.service.Move(c.Request.Context(), req.FolderPath, req.Basename, req.ToFolderPath, middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, a)
}

type deleteRequest struct {
	FolderPath string `json:"folder_path"`
	// Basenames limits the delete; omit to delete every asset in the folder.
	Basenames []string `json:"basenames"`
}

// Delete godoc
// @Summary Delete assets of a folder
// @Description Stored content is queued for hard deletion after the retention grace period.
// @Tags Assets
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /assets/delete [post]
func (h *Handler) Delete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.DeleteInFolder(c.Request.Context(), req.FolderPath, req.Basenames, middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// ListVersions godoc
// @Summary List an asset's versions, newest first
// @Tags Assets
// @Produce json
// @Param id path string true "asset id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /assets/{id}/versions [get]
func (h *Handler) ListVersions(c *gin.Context) {
	a, err := h.service.GetAssetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	versions, err := h.service.ListVersions(c.Request.Context(), a.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, versions)
}

// ListEvents godoc
// @Summary List an asset's move and rename history
// @Tags Assets
// @Produce json
// @Param id path string true "asset id"
// @Success 200 {object} map[string]interface{}
// @Router /assets/{id}/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.service.ListEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, events)
}

// GetVersion godoc
// @Summary Get a version by id
// @Tags Versions
// @Produce json
// @Param id path string true "version id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /versions/{id} [get]
func (h *Handler) GetVersion(c *gin.Context) {
	v, err := h.service.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

type restoreRequest struct {
	Label string `json:"label"`
}

// Restore godoc
// @Summary Publish a copy of an earlier version
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "source version id"
// @Success 201 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /versions/{id}/restore [post]
func (h *Handler) Restore(c *gin.Context) {
	var req restoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}
	res, err := h.service.Restore(c.Request.Context(), c.Param("id"), req.Label, middleware.ActorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}
