package render

import (
	"github.com/spf13/cobra"

	"github.com/isometry/thanos-sidecar/internal/cliflags"
	"github.com/isometry/thanos-sidecar/internal/output"
	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/commands/shared"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

var renderFlags = cliflags.Merge(
	cliflags.ConfigFlags(),
	cliflags.OutputFlags(),
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the sidecar service descriptor",
		Long: `Build the service descriptor from configuration and print it, together
with the outcome of every configured check.

Credential sources are not resolved.

Examples:
  # Show the descriptor as YAML
  thanosctl render

  # Show the systemd unit that apply would install
  thanosctl render -o unit`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	renderFlags.Register(cmd.Flags(), false)

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	v := runctx.Viper(ctx)

	_, doc, err := shared.LoadConfig(ctx, v, false)
	if err != nil {
		return err
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

	report := &output.Report{Descriptor: d, Checks: outcomes}
	if err := output.Print(cmd.OutOrStdout(), report, output.ConfigFromViper(v)); err != nil {
		return err
	}
	return checks.Failures(outcomes)
}
