package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("unique constraint violation")
	ErrFatalEmpty          = errors.New("no records collected from any source")
	ErrLockHeld            = errors.New("lock already held")
	ErrInvalidPeriod       = errors.New("invalid business period")
)
