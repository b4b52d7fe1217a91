package engine

import (
	"io"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// ensureLogger returns a usable logger even when callers pass nil.
func ensureLogger(logger *infra.Logger) *infra.Logger {
	if logger != nil {
		return logger
	}
	discard := zerolog.New(io.Discard)
	l := infra.Logger(discard)
	return &l
}
