package mapping

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every configuration failure with errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports an option set that cannot be applied to the
// target schema. It is fatal for the run.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
