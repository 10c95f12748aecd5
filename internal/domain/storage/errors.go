package storage

import (
	"fmt"

	"assetvault/internal/pkg/apperr"
)

var (
	ErrValidation            = apperr.ErrValidation
	ErrExternalNotConfigured = fmt.Errorf("%w: external backend requires a public base URL", apperr.ErrValidation)
	ErrExternalUnavailable   = fmt.Errorf("%w: external object service is not configured", apperr.ErrValidation)
)
