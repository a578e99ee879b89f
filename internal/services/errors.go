package services

import "github.com/curasync-homepage/curasync-web-app/internal/models"

var (
	ErrUnauthorized     = models.ErrUnauthorized
	ErrForbidden        = models.ErrForbidden
	ErrNotFound         = models.ErrNotFound
	ErrDuplicatePending = models.ErrDuplicatePending
	ErrAlreadyAccepted  = models.ErrAlreadyAccepted
	ErrUnavailable      = models.ErrUnavailable
	ErrMalformed        = models.ErrMalformed
	ErrInvalidInput     = models.ErrInvalidInput
)
