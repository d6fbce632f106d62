package root

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	slogctx "github.com/veqryn/slog-context"

	"github.com/isometry/thanos-sidecar/internal/cliflags"
	"github.com/isometry/thanos-sidecar/pkg/commands/apply"
	"github.com/isometry/thanos-sidecar/pkg/commands/render"
	"github.com/isometry/thanos-sidecar/pkg/commands/validate"
	"github.com/isometry/thanos-sidecar/pkg/commands/verify"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/utils"
)

// EnvPrefix prefixes environment variables that override flags.
const EnvPrefix = "THANOSCTL"

var rootFlags = cliflags.FlagValues{
	"log-format": {
		Kind:         cliflags.FlagKindString,
		DefaultValue: "auto",
		Usage:        "log format (auto|json|text)",
	},
	"debug": {
		Kind:         cliflags.FlagKindBool,
		DefaultValue: false,
		Usage:        "debug mode",
	},
	"log-level": {
		Shorthand: "v",
		Kind:      cliflags.FlagKindCount,
		Usage:     "log level (-v=warn, -vv=info, -vvv=debug)",
	},
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thanosctl",
		Short: "Thanos sidecar service manager",
		Long: `Render, validate and install the Thanos sidecar as a systemd service.

The sidecar is described by a YAML configuration file; see "thanosctl render"
for the resulting service descriptor.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootFlags.Register(cmd.PersistentFlags(), true)

	cmd.AddCommand(render.New())
	cmd.AddCommand(apply.New())
	cmd.AddCommand(validate.New())
	cmd.AddCommand(verify.New())

	return cmd
}

// setup gives every run its own viper instance, logger and run id.
func setup(cmd *cobra.Command, _ []string) error {
	v := runctx.NewViper()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cliflags.BindFlags(cmd, v)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = slogctx.NewCtx(ctx, newLogger(v, cmd.ErrOrStderr()))
	ctx = runctx.ContextWithViper(ctx, v)
	ctx = runctx.ContextWithRunID(ctx)
	cmd.SetContext(ctx)
	return nil
}

func newLogger(v *viper.Viper, w io.Writer) *slog.Logger {
	verbosity := v.GetInt("log-level")
	debugMode := v.GetBool("debug")
	logFormat := v.GetString("log-format")

	level := new(slog.LevelVar)
	level.Set(slog.LevelError - slog.Level(verbosity*4))

	handlerOpts := &slog.HandlerOptions{
		AddSource: debugMode,
		Level:     level,
	}

	// Resolve "auto" format based on TTY detection
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = utils.IsTTY(f)
	}
	useJSON := logFormat == "json" || (logFormat == "auto" && !tty)

	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
