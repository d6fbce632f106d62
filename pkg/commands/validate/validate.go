package validate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isometry/thanos-sidecar/internal/cliflags"
	"github.com/isometry/thanos-sidecar/internal/output"
	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/commands/shared"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

var validateFlags = cliflags.Merge(
	cliflags.ConfigFlags(),
	cliflags.OutputFlags(),
	cliflags.FlagValues{
		"eval": {
			Shorthand:    "e",
			Kind:         cliflags.FlagKindStringArray,
			DefaultValue: []string{},
			Usage:        "CEL expression to evaluate against the descriptor (repeatable)",
		},
	},
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without installing anything",
		Long: `Decode the configuration strictly, build the service descriptor and
evaluate every configured check against it.

Examples:
  # Validate the default config
  thanosctl validate

  # Inspect a value the checks can see
  thanosctl validate -e 'flags["grpc-address"]' -e 'prom.duration(flags["http-grace-period"])'`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	validateFlags.Register(cmd.Flags(), false)

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	v := runctx.Viper(ctx)

	// Always use strict mode for validation
	_, doc, err := shared.LoadConfig(ctx, v, true)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	d, err := sidecar.Build(ctx, doc.ServiceConfig())
	if err != nil {
		return err
	}

	policy, err := shared.Policy(doc)
	if err != nil {
		return err
	}
	outcomes, err := policy.Run(d)
	if err != nil {
		return err
	}

	report := &output.Report{Checks: outcomes}
	if exprs := v.GetStringSlice("eval"); len(exprs) > 0 {
		if report.Value, err = evaluate(exprs, d); err != nil {
			return err
		}
	}

	if err := output.Print(cmd.OutOrStdout(), report, output.ConfigFromViper(v)); err != nil {
		return err
	}
	return checks.Failures(outcomes)
}

// evaluate returns the single value of one expression, or a map of
// expression to value for several.
func evaluate(exprs []string, d *sidecar.ServiceDescriptor) (any, error) {
	values := make(map[string]any, len(exprs))
	for _, expr := range exprs {
		value, err := checks.Eval(expr, d)
		if err != nil {
			return nil, fmt.Errorf("eval %q: %w", expr, err)
		}
		if len(exprs) == 1 {
			return value, nil
		}
		values[expr] = value
	}
	return values, nil
}
