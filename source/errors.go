package source

import "errors"

var (
	// ErrUnsupportedSourceType means no implementation exists for the
	// configured source type.
	ErrUnsupportedSourceType = errors.New("unsupported source type")

	// ErrNotConnected means an operation needing a connection ran on a
	// disconnected source.
	ErrNotConnected = errors.New("source not connected")

	// ErrMissingParam means a required connection parameter is absent.
	ErrMissingParam = errors.New("missing connection parameter")
)
