// Package cliflags provides reusable flag definitions for CLI commands.
// It contains Cobra/Viper flag helpers that can be composed for different commands.
package cliflags

import (
	"maps"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag kinds understood by FlagValue.BuildFlag.
const (
	FlagKindBool        = "bool"
	FlagKindCount       = "count"
	FlagKindInt         = "int"
	FlagKindString      = "string"
	FlagKindStringSlice = "stringSlice"
	FlagKindStringArray = "stringArray"
	FlagKindDuration    = "duration"
)

// DefaultFormat is the default output format.
const DefaultFormat = "yaml"

// FlagValue represents a single flag definition with metadata
type FlagValue struct {
	Shorthand    string
	Kind         string
	DefaultValue any
	NoOptDefault string
	Usage        string
}

// FlagValues is a map of flag names to their definitions
type FlagValues map[string]FlagValue

// Register adds all flags in the set to the given pflag.FlagSet
func (f FlagValues) Register(flagSet *pflag.FlagSet, sort bool) {
	for flagName, flag := range f {
		flag.BuildFlag(flagSet, flagName)
	}
	flagSet.SortFlags = sort
}

// BuildFlag creates a pflag from the FlagValue definition
func (f *FlagValue) BuildFlag(flagSet *pflag.FlagSet, flagName string) {
	switch f.Kind {
	case FlagKindBool:
		flagSet.BoolP(flagName, f.Shorthand, f.DefaultValue.(bool), f.Usage)
	case FlagKindCount:
		flagSet.CountP(flagName, f.Shorthand, f.Usage)
	case FlagKindInt:
		flagSet.IntP(flagName, f.Shorthand, f.DefaultValue.(int), f.Usage)
	case FlagKindString:
		flagSet.StringP(flagName, f.Shorthand, f.DefaultValue.(string), f.Usage)
	case FlagKindStringSlice:
		flagSet.StringSliceP(flagName, f.Shorthand, f.DefaultValue.([]string), f.Usage)
	case FlagKindStringArray:
		flagSet.StringArrayP(flagName, f.Shorthand, f.DefaultValue.([]string), f.Usage)
	case FlagKindDuration:
		flagSet.DurationP(flagName, f.Shorthand, f.DefaultValue.(time.Duration), f.Usage)
	}

	if f.NoOptDefault != "" {
		flag := flagSet.Lookup(flagName)
		flag.NoOptDefVal = f.NoOptDefault
	}
}

// Merge combines multiple FlagValues maps into one.
func Merge(flagSets ...FlagValues) FlagValues {
	result := make(FlagValues)
	for _, fs := range flagSets {
		maps.Copy(result, fs)
	}
	return result
}

// BindFlags binds all command flags to the given viper instance.
// This includes local flags and inherited persistent flags from parent commands.
// All flags are accessible directly by name (e.g., v.GetBool("dry-run")).
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

// ConfigPaths returns the config-path and config-name values from the given viper.
// Use this to call config.Load with consistent settings.
func ConfigPaths(v *viper.Viper) (paths []string, name string) {
	return v.GetStringSlice("config-path"), v.GetString("config-name")
}

// Common flag definitions that can be reused across commands

// ConfigFlags returns flags for configuration file settings.
func ConfigFlags() FlagValues {
	return FlagValues{
		"config-path": {
			Kind:         FlagKindStringSlice,
			DefaultValue: []string{".", "/etc/thanos"},
			Usage:        "configuration paths",
		},
		"config-name": {
			Kind:         FlagKindString,
			DefaultValue: "thanos-sidecar",
			Usage:        "configuration name",
		},
		"strict": {
			Kind:         FlagKindBool,
			DefaultValue: false,
			Usage:        "reject unknown configuration keys",
		},
	}
}

// OutputFlags returns flags for output formatting.
func OutputFlags() FlagValues {
	return FlagValues{
		"output-format": {
			Shorthand:    "o",
			Kind:         FlagKindString,
			DefaultValue: DefaultFormat,
			Usage:        "output format (json, junit, unit, yaml)",
		},
		"compact": {
			Kind:         FlagKindBool,
			DefaultValue: false,
			Usage:        "compact JSON output",
		},
		"color": {
			Kind:         FlagKindString,
			DefaultValue: "auto",
			Usage:        "colorize output: auto, always, never",
		},
	}
}

// InstallFlags returns flags controlling the service installer.
func InstallFlags() FlagValues {
	return FlagValues{
		"unit-dir": {
			Kind:         FlagKindString,
			DefaultValue: "",
			Usage:        "systemd unit directory (default from config, else /etc/systemd/system)",
		},
		"dry-run": {
			Shorthand:    "n",
			Kind:         FlagKindBool,
			DefaultValue: false,
			Usage:        "print the rendered unit instead of installing it",
		},
		"skip-credentials": {
			Kind:         FlagKindBool,
			DefaultValue: false,
			Usage:        "do not resolve credential sources",
		},
	}
}

// TimeoutFlags returns flags for timeout control.
func TimeoutFlags() FlagValues {
	return FlagValues{
		"timeout": {
			Shorthand:    "t",
			Kind:         FlagKindDuration,
			DefaultValue: 10 * time.Second,
			Usage:        "timeout for readiness probes",
		},
	}
}
