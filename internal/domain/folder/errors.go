package folder

import (
	"fmt"

	"assetvault/internal/pkg/apperr"
)

var (
	ErrEmptyPath      = fmt.Errorf("%w: folder path must not be empty", apperr.ErrValidation)
	ErrMoveIntoSelf   = fmt.Errorf("%w: folder cannot be moved inside itself", apperr.ErrValidation)
	ErrFolderNotFound = fmt.Errorf("folder %w", apperr.ErrNotFound)
	ErrFolderExists   = fmt.Errorf("folder %w", apperr.ErrConflict)
)
