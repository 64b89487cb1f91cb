package schedule

import "errors"

var (
	ErrNotFound          = errors.New("vaccine record not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidSeverity   = errors.New("invalid severity")
	ErrInvalidInput      = errors.New("invalid input")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrDateBeforeBirth   = errors.New("actual date is before the child's birth date")
	ErrDateInFuture      = errors.New("actual date is in the future")
	ErrNoDefinitions     = errors.New("no vaccine definitions for schedule version")
)
