package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned by services for malformed requests
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooLarge is returned for uploads above the configured size limit
	ErrTooLarge = errors.New("payload too large")

	// ErrBusy is returned when background capacity is exhausted
	ErrBusy = errors.New("server busy")
)
