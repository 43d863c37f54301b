package errs

import (
	"errors"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrOverlapConflict       = errors.New("interval overlaps an active booking")
	ErrStaleVersion          = errors.New("stale booking version")
	ErrNotFound              = errors.New("booking not found")
	ErrTransition            = errors.New("status transition not permitted")
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)

type ErrorResponse struct {
	Message string `json:"message"`
}
