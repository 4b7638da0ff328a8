package services

import "errors"

var (
	// ErrNotFound indicates a requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("conflict")
	// ErrMalformed indicates a stored document could not be parsed.
	ErrMalformed = errors.New("malformed document")
	// ErrUnimplemented marks host operations this storage does not support.
	ErrUnimplemented = errors.New("not implemented")
	// ErrInvalidName indicates a package or file name that cannot be mapped to a key.
	ErrInvalidName = errors.New("invalid name")
)
