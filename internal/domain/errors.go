package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadySettled  = errors.New("job already settled")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrProviderFailure = errors.New("provider failure")
)
