// Package storage holds shared storage errors for the verification service.
// The store contract itself lives next to its consumer in the domain
// package (domain.RequestStore).
package storage

import (
	"github.com/veravid/veravid/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.EK(errors.KindNotFound, "storage.not_found", "record not found")

// ErrNotPending indicates a terminal-state transition attempt on a request
// that is no longer pending.
var ErrNotPending = errors.EK(errors.KindFailedPrecondition, "verification.not_pending", "request is not pending")
