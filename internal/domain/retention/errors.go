package retention

import (
	"fmt"

	"assetvault/internal/pkg/apperr"
)

var ErrPendingNotFound = fmt.Errorf("pending deletion %w", apperr.ErrNotFound)
