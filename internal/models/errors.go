package models

import "errors"

var (
	// ErrInvalidArgument marks inputs rejected before any I/O: a hybrid weight outside [0,1],
	// a non-positive top-k, a vector of the wrong shape.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrProvisioning marks a failure to create or recreate an index.
	ErrProvisioning = errors.New("index provisioning failed")
	// ErrIntegrity marks a stored record that does not carry the metadata every match must have.
	ErrIntegrity = errors.New("data integrity violation")
	// ErrNotFitted is returned by a sparse encoder used before Fit.
	ErrNotFitted = errors.New("sparse encoder not fitted")
	// ErrAlreadyFitted is returned by a second Fit call; the lexical model is immutable once fitted.
	ErrAlreadyFitted = errors.New("sparse encoder already fitted")
)
