package types

import "errors"

// Domain errors for declaration validation
var (
	ErrMissingName       = errors.New("declaration name is required")
	ErrUnknownKind       = errors.New("unknown declaration kind")
	ErrInvalidMixin      = errors.New("invalid mixin directive")
	ErrInvalidVisibility = errors.New("invalid visibility")
)
