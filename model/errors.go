package model

import "errors"

// Error kinds. Packages wrap one of these so callers can classify a failure
// with errors.Is regardless of where it originated.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrStorage       = errors.New("storage error")
	ErrValidation    = errors.New("validation error")
	ErrNetwork       = errors.New("network error")
	ErrRejected      = errors.New("remote rejection")
)
