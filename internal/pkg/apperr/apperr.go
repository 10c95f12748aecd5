// Package apperr holds the error kinds every domain package wraps its
// sentinel errors in, so transports can classify failures uniformly.
package apperr

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("already exists")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")
)
