package checks

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Expression represents a CEL expression validation rule
type Expression struct {
	Expression string `mapstructure:"check" json:"check" yaml:"check"`
	Message    string `mapstructure:"message" json:"message,omitempty" yaml:"message,omitempty"`
}

// StringToExpressionHookFunc lets a check be written as a bare string in
// configuration, in place of a {check, message} map.
func StringToExpressionHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(Expression{}) {
			return data, nil
		}
		return Expression{Expression: data.(string)}, nil
	}
}
