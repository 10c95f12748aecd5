package migration

import (
	"fmt"

	"assetvault/internal/pkg/apperr"
)

var (
	ErrAlreadyMigrated  = fmt.Errorf("%w: version is already on the external backend", apperr.ErrInvalidState)
	ErrNoLocalReference = fmt.Errorf("%w: version has no local reference", apperr.ErrInvalidState)
	ErrNotMigrated      = fmt.Errorf("%w: version has not been migrated", apperr.ErrInvalidState)
	ErrNoExternalKey    = fmt.Errorf("%w: version has no external key", apperr.ErrInvalidState)
	ErrLocalBlobMissing = fmt.Errorf("local blob %w", apperr.ErrNotFound)
)
