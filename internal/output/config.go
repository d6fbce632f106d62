package output

import (
	"os"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/isometry/thanos-sidecar/internal/cliflags"
)

// Config holds configuration for formatting command output.
type Config struct {
	Format   string // output format (yaml, json, junit, unit)
	Compact  bool
	Colorize bool // colorize output (for supported formats)
}

// ConfigFromViper creates a Config from the common output flags.
func ConfigFromViper(v *viper.Viper) Config {
	format := v.GetString("output-format")
	if format == "" {
		format = cliflags.DefaultFormat
	}

	return Config{
		Format:   format,
		Compact:  v.GetBool("compact"),
		Colorize: shouldColorize(v.GetString("color")),
	}
}

// shouldColorize determines whether to colorize output based on the color flag value.
func shouldColorize(colorFlag string) bool {
	switch colorFlag {
	case "always":
		return true
	case "never":
		return false
	default: // "auto"
		return term.IsTerminal(int(os.Stdout.Fd()))
	}
}
