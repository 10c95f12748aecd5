package upload

import (
	"fmt"

	"assetvault/internal/pkg/apperr"
)

var (
	ErrIntentNotFound   = fmt.Errorf("upload intent %w", apperr.ErrNotFound)
	ErrIntentNotCreated = fmt.Errorf("%w: upload intent is not open", apperr.ErrInvalidState)
	ErrIntentFinalized  = fmt.Errorf("%w: already finalized", ErrIntentNotCreated)
	ErrIntentExpired    = fmt.Errorf("upload intent %w", apperr.ErrExpired)
	ErrMissingStorageID = fmt.Errorf("%w: upload result carries no storageId", apperr.ErrValidation)
	ErrBlobNotFound     = fmt.Errorf("uploaded blob %w", apperr.ErrNotFound)
)
