// Package storage holds shared storage errors for the videos service. The
// store contract lives next to its consumer in the domain package
// (domain.VideoStore).
package storage

import (
	apperrors "github.com/veravid/veravid/internal/platform/errors"
)

// ErrNotFound reports that no record matched the lookup.
var ErrNotFound = apperrors.EK(apperrors.KindNotFound, "storage.not_found", "record not found")
