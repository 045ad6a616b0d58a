package dispatch

import "errors"

// Failure classes for inbound message handling. The receiver loop
// classifies these with errors.Is when logging dropped messages; none of
// them terminate the connection.
var (
	ErrUnknownCommand      = errors.New("unknown command")
	ErrMissingField        = errors.New("missing field")
	ErrInvalidValue        = errors.New("invalid value")
	ErrUnresolvedReference = errors.New("unresolved reference")
)
