package asr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEngine is returned when an engine key is not registered with the factory
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrUnknownSession is returned when a session id does not exist
	ErrUnknownSession = errors.New("unknown session")
)

// ConfigError reports invalid or missing handler construction options.
// It is surfaced at session start, before any audio is accepted.
type ConfigError struct {
	Engine string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid options for engine %q: %s", e.Engine, e.Reason)
}

// IsConfigError reports whether err is a handler configuration failure
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// truncateError shortens an error message for inclusion in a status update
func truncateError(err error) string {
	msg := err.Error()
	runes := []rune(msg)
	if len(runes) <= 50 {
		return msg
	}
	return string(runes[:50]) + "..."
}
