package models

import "errors"

var (
	ErrNotFound          = errors.New("card not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
)
