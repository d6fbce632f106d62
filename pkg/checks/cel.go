// Package checks evaluates CEL (Common Expression Language) policy checks
// against a sidecar service descriptor.
package checks

import (
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/isometry/thanos-sidecar/pkg/checks/functions"
)

var extensions = []cel.EnvOption{
	ext.Bindings(),
	ext.Strings(),
	ext.Lists(),
	ext.Sets(),
}

// Env builds its CEL environment on first use and keeps one program per
// boolean check expression.
type Env struct {
	options []cel.EnvOption

	once sync.Once
	env  *cel.Env
	err  error

	programs sync.Map // expression -> cel.Program
}

// NewEnv declares vars on top of the prom.* and net.* functions.
func NewEnv(vars ...cel.EnvOption) *Env {
	options := append([]cel.EnvOption{}, functions.All()...)
	options = append(options, vars...)
	return &Env{options: append(options, extensions...)}
}

func (e *Env) celEnv() (*cel.Env, error) {
	e.once.Do(func() {
		e.env, e.err = cel.NewEnv(e.options...)
	})
	return e.env, errors.Wrap(e.err, "failed to create CEL environment")
}

// Check is a compiled boolean expression.
type Check struct {
	program cel.Program
	expr    Expression
}

func (c *Check) Expression() Expression {
	return c.expr
}

// Evaluate returns "" when the check holds and its failure message
// otherwise. An error means the expression could not be evaluated.
func (c *Check) Evaluate(activation map[string]any) (string, error) {
	result, _, err := c.program.Eval(activation)
	if err != nil {
		return "", errors.Wrap(err, "evaluation failed")
	}
	if passed, ok := result.Value().(bool); ok && passed {
		return "", nil
	}
	if c.expr.Message != "" {
		return c.expr.Message, nil
	}
	return "check failed: " + c.expr.Expression, nil
}

// Compile type-checks expr, which must yield a bool. Programs are shared
// between checks with the same expression.
func (e *Env) Compile(expr Expression) (*Check, error) {
	if cached, ok := e.programs.Load(expr.Expression); ok {
		return &Check{program: cached.(cel.Program), expr: expr}, nil
	}

	env, err := e.celEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("expression must return boolean, got %v", ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to plan expression")
	}

	actual, _ := e.programs.LoadOrStore(expr.Expression, program)
	return &Check{program: actual.(cel.Program), expr: expr}, nil
}

// CompileAll compiles exprs in order; the first failure is reported with its
// index.
func (e *Env) CompileAll(exprs []Expression) ([]*Check, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	compiled := make([]*Check, len(exprs))
	for i, expr := range exprs {
		check, err := e.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "check[%d]", i)
		}
		compiled[i] = check
	}
	return compiled, nil
}

// EvaluateAny evaluates an expression of any type and returns its value as
// plain Go data (maps, slices, strings, float64, bool or nil).
func (e *Env) EvaluateAny(expr string, activation map[string]any) (any, error) {
	env, err := e.celEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	result, _, err := program.Eval(activation)
	if err != nil {
		return nil, err
	}

	native, err := result.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return nil, errors.Wrap(err, "result cannot be represented as data")
	}
	return native.(*structpb.Value).AsInterface(), nil
}
