package repository

import (
	"fmt"

	apperrors "ctrlauth/internal/errors"
)

// storeError marks a backend failure so it is never mistaken for a missing record.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrStoreUnavailable, op, err)
}
