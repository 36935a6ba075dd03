package config

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned when no loader understands a definition file.
var ErrUnsupportedFormat = errors.New("unsupported definition format")

// Loader is the interface for a format-specific definition loader.
type Loader interface {
	// Load reads the definition at path and translates it into the
	// format-agnostic model.
	Load(ctx context.Context, path string) (*Definition, error)
}
