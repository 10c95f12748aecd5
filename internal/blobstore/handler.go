package blobstore

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"assetvault/internal/pkg/jwt"
	"assetvault/internal/pkg/response"
)

type Handler struct {
	store   *Store
	maxBody int64
}

// NewHandler serves the signed blob URLs. maxBody caps upload size; 0 means
// no cap.
func NewHandler(store *Store, maxBody int64) *Handler {
	return &Handler{store: store, maxBody: maxBody}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/upload", h.Upload)
	r.GET("/:handle", h.Download)
}

// Upload godoc
// @Summary Accept the body of a one-shot local upload
// @Tags Blobs
// @Accept octet-stream
// @Produce json
// @Param token query string true "upload token"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]interface{}
// @Router /blobs/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	var body io.Reader = c.Request.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}

	handle, err := h.store.Accept(c.Request.Context(), c.Query("token"), body, c.ContentType())
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrWrongScope), errors.Is(err, ErrTokenUsed):
			response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error())
		case errors.As(err, &tooLarge):
			response.Error(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error())
		default:
			response.Fail(c, err)
		}
		return
	}
	// the upload result is consumed verbatim by upload finalize
	c.JSON(http.StatusOK, gin.H{"storageId": handle})
}

func (h *Handler) Download(c *gin.Context) {
	handle := c.Param("handle")
	if err := h.store.Authorize(c.Query("token"), handle); err != nil {
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	rc, m, err := h.store.Open(c.Request.Context(), handle)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	if rc == nil {
		c.String(http.StatusNotFound, "not found")
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, m.Size, m.ContentType, rc, nil)
}
