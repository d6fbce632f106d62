package checks

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

// policyEnv declares the variables a policy check can reference.
var policyEnv = NewEnv(
	cel.Variable("name", cel.StringType),
	cel.Variable("command", cel.StringType),
	cel.Variable("run_state", cel.StringType),
	cel.Variable("user", cel.StringType),
	cel.Variable("group", cel.StringType),
	cel.Variable("bin_path", cel.StringType),
	cel.Variable("flags", cel.MapType(cel.StringType, cel.DynType)),
	cel.Variable("env", cel.ListType(cel.StringType)),
	cel.Variable("max_open_files", cel.IntType),
	cel.Variable("tls", cel.BoolType),
)

// Context returns the CEL activation for d. max_open_files is 0 when unset.
func Context(d *sidecar.ServiceDescriptor) map[string]any {
	flags := make(map[string]any, d.Flags.Len())
	for _, f := range d.Flags.Entries() {
		switch v := f.Value.(type) {
		case []string:
			items := make([]any, len(v))
			for i, s := range v {
				items[i] = s
			}
			flags[f.Name] = items
		default:
			flags[f.Name] = v
		}
	}

	env := d.EnvVars
	if env == nil {
		env = []string{}
	}

	maxOpenFiles := 0
	if d.MaxOpenFiles != nil {
		maxOpenFiles = *d.MaxOpenFiles
	}

	return map[string]any{
		"name":           d.Name,
		"command":        d.Command,
		"run_state":      string(d.RunState),
		"user":           d.User,
		"group":          d.Group,
		"bin_path":       d.BinPath,
		"flags":          flags,
		"env":            env,
		"max_open_files": maxOpenFiles,
		"tls":            d.TLSEnabled(),
	}
}

// Failure is one check that evaluated to false.
type Failure struct {
	Index      int
	Expression string
	Message    string
}

// PolicyError collects every failed check of one evaluation.
type PolicyError struct {
	Failures []Failure
}

func (e *PolicyError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = fmt.Sprintf("check[%d]: %s", f.Index, f.Message)
	}
	return "policy violated: " + strings.Join(msgs, "; ")
}

func (e *PolicyError) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("failures", len(e.Failures)))
}

// Policy is a compiled list of checks.
type Policy struct {
	checks []*Check
}

// NewPolicy compiles exprs. An empty list yields a policy that always passes.
func NewPolicy(exprs []Expression) (*Policy, error) {
	for i, expr := range exprs {
		if expr.Expression == "" {
			return nil, fmt.Errorf("check[%d]: missing 'check' field", i)
		}
	}
	compiled, err := policyEnv.CompileAll(exprs)
	if err != nil {
		return nil, err
	}
	return &Policy{checks: compiled}, nil
}

// Len returns the number of checks.
func (p *Policy) Len() int {
	return len(p.checks)
}

// Outcome is the result of one check.
type Outcome struct {
	Expression string `json:"check" yaml:"check"`
	Passed     bool   `json:"passed" yaml:"passed"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Run evaluates every check against d in order. An evaluation error aborts
// immediately.
func (p *Policy) Run(d *sidecar.ServiceDescriptor) ([]Outcome, error) {
	celCtx := Context(d)

	outcomes := make([]Outcome, len(p.checks))
	for i, check := range p.checks {
		msg, err := check.Evaluate(celCtx)
		if err != nil {
			return nil, fmt.Errorf("check[%d]: %w", i, err)
		}
		outcomes[i] = Outcome{Expression: check.Expression().Expression, Passed: msg == "", Message: msg}
	}
	return outcomes, nil
}

// Evaluate runs every check against d. Failed checks are collected into a
// *PolicyError.
func (p *Policy) Evaluate(d *sidecar.ServiceDescriptor) error {
	outcomes, err := p.Run(d)
	if err != nil {
		return err
	}
	return Failures(outcomes)
}

// Failures returns a *PolicyError for the failed outcomes, or nil.
func Failures(outcomes []Outcome) error {
	var failures []Failure
	for i, o := range outcomes {
		if !o.Passed {
			failures = append(failures, Failure{Index: i, Expression: o.Expression, Message: o.Message})
		}
	}
	if len(failures) > 0 {
		return &PolicyError{Failures: failures}
	}
	return nil
}

// Eval evaluates an arbitrary expression against d and returns its native
// value.
func Eval(expr string, d *sidecar.ServiceDescriptor) (any, error) {
	return policyEnv.EvaluateAny(expr, Context(d))
}
