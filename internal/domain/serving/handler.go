package serving

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"assetvault/internal/middleware"
	"assetvault/internal/pkg/pathutil"
	"assetvault/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the public file surface on r: "v/{id}[/{filename}]"
// serves a version by id, any other path serves the published version of
// "{folder...}/{basename}".
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	files := r.Group("", middleware.ServeCORS())
	{
		files.GET("/*path", h.Serve)
		files.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
}

// RegisterAPIRoutes mounts the management endpoints.
func (h *Handler) RegisterAPIRoutes(r *gin.RouterGroup) {
	r.GET("/versions/:id/text", h.Text)
}

func (h *Handler) Serve(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")

	var (
		d   *Decision
		err error
	)
	if rest, ok := strings.CutPrefix(path, "v/"); ok {
		id, _, _ := strings.Cut(rest, "/")
		d, err = h.service.GetVersionForServing(c.Request.Context(), id)
	} else {
		path = pathutil.Normalize(path)
		d, err = h.service.GetPublishedForServing(c.Request.Context(), pathutil.Parent(path), pathutil.Base(path))
	}
	if err != nil {
		_ = c.Error(err)
		c.Header("Cache-Control", CacheNone)
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	Write(c, d)
}

// Write renders a decision.
func Write(c *gin.Context, d *Decision) {
	c.Header("Cache-Control", d.CacheControl)
	switch d.Kind {
	case KindBlob:
		c.Data(http.StatusOK, d.ContentType, d.Body)
	case KindRedirect:
		c.Redirect(http.StatusFound, d.Location)
	default:
		c.String(http.StatusNotFound, "not found")
	}
}

// Text godoc
// @Summary Read a version's content as text
// @Description data is null when the content is missing or unreachable.
// @Tags Versions
// @Produce json
// @Param id path string true "version id"
// @Success 200 {object} map[string]interface{}
// @Router /versions/{id}/text [get]
func (h *Handler) Text(c *gin.Context) {
	text, ok := h.service.GetTextContent(c.Request.Context(), c.Param("id"))
	if !ok {
		response.Success(c, http.StatusOK, nil)
		return
	}
	response.Success(c, http.StatusOK, text)
}
