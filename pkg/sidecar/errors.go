package sidecar

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEnumValue is matched by every InvalidEnumValueError.
var ErrInvalidEnumValue = errors.New("invalid enum value")

// InvalidEnumValueError reports an enumerated field holding a value outside
// its closed set.
type InvalidEnumValueError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("%s: invalid value %q for %s (allowed: %s)",
		ErrInvalidEnumValue, e.Value, e.Field, strings.Join(e.Allowed, ", "))
}

func (e *InvalidEnumValueError) Is(target error) bool {
	return target == ErrInvalidEnumValue
}
