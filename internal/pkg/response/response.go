package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"assetvault/internal/pkg/apperr"
	"assetvault/internal/pkg/pathutil"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// Fail classifies a domain error by its kind and writes the matching
// status. Unclassified errors are logged and reported as a bare 500.
func Fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, apperr.ErrConflict):
		Error(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, apperr.ErrInvalidState):
		Error(c, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, apperr.ErrExpired):
		Error(c, http.StatusGone, "EXPIRED", err.Error())
	case errors.Is(err, pathutil.ErrCollisionExhausted):
		Error(c, http.StatusConflict, "COLLISION_EXHAUSTED", err.Error())
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
