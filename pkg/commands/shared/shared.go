// Package shared holds the configuration plumbing common to every command.
package shared

import (
	"context"

	"github.com/spf13/viper"

	"github.com/isometry/thanos-sidecar/internal/cliflags"
	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/config"
	"github.com/isometry/thanos-sidecar/pkg/credentials"
	"github.com/isometry/thanos-sidecar/pkg/probe"
	"github.com/isometry/thanos-sidecar/pkg/service/systemd"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

// LoadConfig reads the configuration file named by the config flags. strict
// forces unknown keys to be rejected regardless of --strict.
func LoadConfig(ctx context.Context, v *viper.Viper, strict bool) (*config.Loader, *config.Document, error) {
	paths, name := cliflags.ConfigPaths(v)
	loader := config.NewLoader(paths, name, strict || v.GetBool("strict"))
	doc, err := loader.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return loader, doc, nil
}

// ServiceConfig returns the effective sidecar config of doc, with credential
// sources resolved into it when resolve is set. The config is validated
// first, so an invalid one never writes secret files.
func ServiceConfig(ctx context.Context, doc *config.Document, resolve bool, opts ...credentials.Option) (sidecar.ServiceConfig, error) {
	cfg := doc.ServiceConfig()
	if err := cfg.Validate(); err != nil {
		return sidecar.ServiceConfig{}, err
	}
	if !resolve || len(doc.Credentials) == 0 {
		return cfg, nil
	}
	if err := credentials.Resolve(ctx, doc.Credentials, &cfg, opts...); err != nil {
		return sidecar.ServiceConfig{}, err
	}
	return cfg, nil
}

// ProbeOptions configures readiness probes from the install section of doc
// and the --timeout flag.
func ProbeOptions(v *viper.Viper, doc *config.Document, insecure bool) ([]probe.Option, error) {
	opts := []probe.Option{
		probe.WithTimeout(v.GetDuration("timeout")),
		probe.WithInsecure(insecure || doc.Install.VerifyInsecure),
		probe.WithServerName(doc.Install.VerifyServerName),
	}
	if doc.Install.VerifyCAFile != "" {
		pool, err := probe.LoadRootCAs(doc.Install.VerifyCAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, probe.WithRootCAs(pool))
	}
	return opts, nil
}

// Policy compiles the checks of doc.
func Policy(doc *config.Document) (*checks.Policy, error) {
	return checks.NewPolicy(doc.Checks)
}

// UnitDir picks the unit directory: --unit-dir, then install.unit_dir, then
// the systemd default.
func UnitDir(v *viper.Viper, doc *config.Document) string {
	if dir := v.GetString("unit-dir"); dir != "" {
		return dir
	}
	if doc != nil && doc.Install.UnitDir != "" {
		return doc.Install.UnitDir
	}
	return systemd.DefaultUnitDir
}
