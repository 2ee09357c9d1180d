package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("conflict")
	ErrAlreadySettled    = errors.New("booking already settled")
	ErrUnmatched         = errors.New("order reference not found in payment description")
	ErrAmountMismatch    = errors.New("payment amount does not match booking amount")
	ErrTransientUpstream = errors.New("payment gateway unavailable")
	ErrFatal             = errors.New("persistence failure")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrCapacityUnderflow = errors.New("capacity would drop below zero")
	ErrDuplicate         = errors.New("duplicate key")
)
