package engine

import (
	"errors"
	"fmt"
)

// ErrEngineUnavailable marks a transient backend failure that warrants a
// retry or a fallback to the next engine in priority order.
var ErrEngineUnavailable = errors.New("engine unavailable")

// ConfigError reports a missing or invalid configuration key at engine
// construction time. Construction never partially succeeds.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("engine config: key %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("engine config: missing required key %q", e.Key)
}

// UnsupportedEngineError reports an EngineType the factory does not know.
type UnsupportedEngineError struct {
	Type EngineType
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("unsupported engine type %q", string(e.Type))
}
