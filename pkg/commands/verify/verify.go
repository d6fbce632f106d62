package verify

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/isometry/thanos-sidecar/internal/cliflags"
	"github.com/isometry/thanos-sidecar/internal/output"
	"github.com/isometry/thanos-sidecar/pkg/commands/shared"
	"github.com/isometry/thanos-sidecar/pkg/probe"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/service/systemd"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

var verifyFlags = cliflags.Merge(
	cliflags.ConfigFlags(),
	cliflags.OutputFlags(),
	cliflags.TimeoutFlags(),
	cliflags.FlagValues{
		"skip-systemctl": {
			Kind:         cliflags.FlagKindBool,
			DefaultValue: false,
			Usage:        "only probe the endpoints, do not ask systemd for the unit state",
		},
		"insecure": {
			Kind:         cliflags.FlagKindBool,
			DefaultValue: false,
			Usage:        "skip certificate verification for the gRPC probe",
		},
	},
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the installed sidecar matches its configuration",
		Long: `Confirm the systemd unit is active exactly when ensure is "present", then
probe the sidecar's HTTP readiness endpoint and gRPC health service.`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	verifyFlags.Register(cmd.Flags(), false)

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	v := runctx.Viper(ctx)
	log := runctx.Logger(ctx, slog.String("command", "verify"))

	_, doc, err := shared.LoadConfig(ctx, v, false)
	if err != nil {
		return err
	}

	d, err := sidecar.Build(ctx, doc.ServiceConfig())
	if err != nil {
		return err
	}

	if !v.GetBool("skip-systemctl") {
		unit := systemd.UnitName(d.Name)
		active, err := systemd.NewSystemctl(nil).IsActive(ctx, unit)
		if err != nil {
			return err
		}
		if want := d.RunState == sidecar.RunStateRunning; active != want {
			return fmt.Errorf("%s: active=%t, want run state %s", unit, active, d.RunState)
		}
		log.Info("unit state matches", slog.String("unit", unit), slog.Bool("active", active))
	}

	if d.RunState != sidecar.RunStateRunning {
		return nil
	}

	probeOpts, err := shared.ProbeOptions(v, doc, v.GetBool("insecure"))
	if err != nil {
		return err
	}
	results, err := probe.New(probeOpts...).Probe(ctx, d)
	if printErr := output.Print(cmd.OutOrStdout(), &output.Report{Probes: results}, output.ConfigFromViper(v)); printErr != nil {
		return printErr
	}
	return err
}
