package asset

import (
	"fmt"

	"assetvault/internal/pkg/apperr"
)

var (
	ErrInvalidBasename  = fmt.Errorf("%w: basename must be non-empty and contain no path separator", apperr.ErrValidation)
	ErrAssetNotFound    = fmt.Errorf("asset %w", apperr.ErrNotFound)
	ErrVersionNotFound  = fmt.Errorf("version %w", apperr.ErrNotFound)
	ErrAssetExists      = fmt.Errorf("asset %w", apperr.ErrConflict)
	ErrNoAssociatedFile = fmt.Errorf("%w: version has no associated file", apperr.ErrInvalidState)
)
