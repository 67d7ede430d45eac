package provision

import "errors"

var (
	// ErrValidation marks request input problems. Nothing was written or
	// called when this is returned.
	ErrValidation = errors.New("invalid request")

	// ErrHostNotFound is returned when the host id does not resolve to an
	// active host profile.
	ErrHostNotFound = errors.New("host not found")

	// ErrConfiguration marks host, pool, or template misconfiguration that
	// makes the request unserviceable (no free address, no usable template,
	// missing gateway).
	ErrConfiguration = errors.New("configuration error")
)
