package apply

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/isometry/thanos-sidecar/internal/cliflags"
	"github.com/isometry/thanos-sidecar/internal/output"
	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/commands/shared"
	"github.com/isometry/thanos-sidecar/pkg/config"
	"github.com/isometry/thanos-sidecar/pkg/probe"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/service/systemd"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
	"github.com/isometry/thanos-sidecar/pkg/utils"
)

// probeInterval is the pause between readiness probes after an install.
const probeInterval = time.Second

var applyFlags = cliflags.Merge(
	cliflags.ConfigFlags(),
	cliflags.InstallFlags(),
	cliflags.OutputFlags(),
	cliflags.TimeoutFlags(),
	cliflags.FlagValues{
		"verify": {
			Kind:         cliflags.FlagKindBool,
			DefaultValue: false,
			Usage:        "wait for the sidecar to become ready after installing it",
		},
		"watch": {
			Shorthand:    "w",
			Kind:         cliflags.FlagKindBool,
			DefaultValue: false,
			Usage:        "re-apply whenever the configuration file changes",
		},
	},
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Install or remove the sidecar service",
		Long: `Resolve credentials, evaluate checks, then converge the systemd unit onto
the configured sidecar: written, enabled and (re)started when ensure is
"present", stopped and removed otherwise.

Examples:
  # Show the unit without touching the system
  thanosctl apply --dry-run

  # Install and wait for the sidecar to report ready
  thanosctl apply --verify`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	applyFlags.Register(cmd.Flags(), false)

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	v := runctx.Viper(ctx)
	log := runctx.Logger(ctx, slog.String("command", "apply"))

	loader, doc, err := shared.LoadConfig(ctx, v, false)
	if err != nil {
		return err
	}
	if err := apply(ctx, cmd, v, doc); err != nil {
		return err
	}
	if !v.GetBool("watch") {
		return nil
	}

	err = loader.Watch(ctx, func(ctx context.Context, doc *config.Document) {
		if err := apply(ctx, cmd, v, doc); err != nil {
			log.Error("failed to re-apply configuration", "error", err)
		}
	})
	if err != nil {
		return err
	}
	log.Info("watching configuration", slog.String("configFile", loader.ConfigFileUsed()))
	<-ctx.Done()
	return nil
}

func apply(ctx context.Context, cmd *cobra.Command, v *viper.Viper, doc *config.Document) error {
	log := runctx.Logger(ctx, slog.String("command", "apply"))
	dryRun := v.GetBool("dry-run")

	// a dry run must not write secret files
	resolve := !dryRun && !v.GetBool("skip-credentials")
	cfg, err := shared.ServiceConfig(ctx, doc, resolve)
	if err != nil {
		return err
	}

	policy, err := shared.Policy(doc)
	if err != nil {
		return err
	}

	unitDir := shared.UnitDir(v, doc)
	var installer sidecar.Installer
	if dryRun {
		installer = &systemd.DryRun{UnitDir: unitDir, Out: cmd.OutOrStdout()}
	} else {
		installer = systemd.NewInstaller(unitDir)
	}

	d, err := sidecar.Apply(ctx, cfg, checks.Guard(policy, installer))
	if err != nil {
		return err
	}
	log.Info("service applied", slog.Any("descriptor", d), slog.Bool("dryRun", dryRun))

	if dryRun || d.RunState != sidecar.RunStateRunning || !(doc.Install.Verify || v.GetBool("verify")) {
		return nil
	}

	probeOpts, err := shared.ProbeOptions(v, doc, false)
	if err != nil {
		return err
	}

	verifyCtx, cancel := utils.WithOptionalTimeout(ctx, doc.Install.VerifyTimeout)
	defer cancel()

	results, err := probe.New(probeOpts...).Wait(verifyCtx, d, probeInterval)
	if printErr := output.Print(cmd.OutOrStdout(), &output.Report{Probes: results}, output.ConfigFromViper(v)); printErr != nil {
		return printErr
	}
	return err
}
