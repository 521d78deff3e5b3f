package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing backend configuration or a missing local path
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport marks a client or network failure talking to a remote origin
	ErrTransport = errors.New("transport error")

	// ErrFilesystem marks a local read failure
	ErrFilesystem = errors.New("filesystem error")

	// ErrUnsupportedScheme is returned in strict mode for an unknown "scheme://" source
	ErrUnsupportedScheme = fmt.Errorf("%w: unsupported origin scheme", ErrConfiguration)
)

// ErrorClass names the taxonomy bucket of err for logs and metric labels
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	default:
		return "unknown"
	}
}
