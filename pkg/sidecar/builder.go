// Package sidecar turns a typed sidecar configuration into the service
// descriptor handed to a service installer.
package sidecar

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	slogctx "github.com/veqryn/slog-context"
)

const (
	// ServiceName is the name of the managed service unit.
	ServiceName = "thanos-sidecar"
	// Command is the subcommand of the thanos binary being run.
	Command = "sidecar"
)

// ServiceDescriptor is everything a service installer needs to render and
// run the sidecar.
type ServiceDescriptor struct {
	Name         string         `json:"name" yaml:"name"`
	Command      string         `json:"command" yaml:"command"`
	RunState     RunState       `json:"runState" yaml:"runState"`
	BinPath      string         `json:"binPath" yaml:"binPath"`
	User         string         `json:"user" yaml:"user"`
	Group        string         `json:"group" yaml:"group"`
	MaxOpenFiles *int           `json:"maxOpenFiles,omitempty" yaml:"maxOpenFiles,omitempty"`
	Flags        *FlagMap       `json:"flags" yaml:"flags"`
	ExtraParams  map[string]any `json:"extraParams,omitempty" yaml:"extraParams,omitempty"`
	EnvVars      []string       `json:"envVars,omitempty" yaml:"envVars,omitempty"`
}

// TLSEnabled reports whether the descriptor configures gRPC server TLS.
func (d *ServiceDescriptor) TLSEnabled() bool {
	return d.Flags.Has("grpc-server-tls-cert") && d.Flags.Has("grpc-server-tls-key")
}

func (d *ServiceDescriptor) LogValue() slog.Value {
	logAttr := []slog.Attr{
		slog.String("name", d.Name),
		slog.String("runState", string(d.RunState)),
		slog.String("binPath", d.BinPath),
		slog.String("user", d.User),
		slog.String("group", d.Group),
		slog.Int("flags", d.Flags.Len()),
		slog.Int("envVars", len(d.EnvVars)),
	}
	return slog.GroupValue(logAttr...)
}

// Installer renders and activates (or removes) a service from a descriptor.
type Installer interface {
	Install(ctx context.Context, d *ServiceDescriptor) error
}

// Build fills unset defaults, validates cfg and assembles its descriptor.
// The caller's cfg is not modified.
func Build(ctx context.Context, cfg ServiceConfig) (*ServiceDescriptor, error) {
	log := slogctx.FromCtx(ctx).With(slog.String("service", ServiceName))

	cfg = cfg.Clone()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	flags := typedFlags(log, &cfg)
	mergeExtraParams(flags, cfg.ExtraParams)

	d := &ServiceDescriptor{
		Name:        ServiceName,
		Command:     Command,
		RunState:    DeriveRunState(cfg.Ensure),
		BinPath:     cfg.BinPath,
		User:        cfg.User,
		Group:       cfg.Group,
		Flags:       flags,
		ExtraParams: maps.Clone(cfg.ExtraParams),
		EnvVars:     slices.Clone(cfg.EnvVars),
	}
	if cfg.MaxOpenFiles != nil {
		n := *cfg.MaxOpenFiles
		d.MaxOpenFiles = &n
	}

	log.Debug("descriptor built", slog.Any("descriptor", d))
	return d, nil
}

// Apply builds the descriptor and hands it to installer exactly once.
// Installer errors are returned unchanged.
func Apply(ctx context.Context, cfg ServiceConfig, installer Installer) (*ServiceDescriptor, error) {
	d, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := installer.Install(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

func typedFlags(log *slog.Logger, cfg *ServiceConfig) *FlagMap {
	flags := &FlagMap{}
	setString := func(name, value string) {
		if value != "" {
			flags.Set(name, value)
		}
	}

	setString("log.level", string(cfg.LogLevel))
	setString("log.format", string(cfg.LogFormat))
	setString("tracing.config-file", cfg.TracingConfigFile)
	setString("http-address", cfg.HTTPAddress)
	setString("http-grace-period", cfg.HTTPGracePeriod)
	setString("grpc-address", cfg.GRPCAddress)
	setString("grpc-grace-period", cfg.GRPCGracePeriod)

	switch {
	case cfg.TLSEnabled():
		flags.Set("grpc-server-tls-cert", cfg.GRPCServerTLSCert)
		flags.Set("grpc-server-tls-key", cfg.GRPCServerTLSKey)
		setString("grpc-server-tls-client-ca", cfg.GRPCServerTLSClientCA)
	case cfg.GRPCServerTLSCert != "" || cfg.GRPCServerTLSKey != "" || cfg.GRPCServerTLSClientCA != "":
		log.Warn("gRPC TLS requires both certificate and key; TLS flags omitted",
			slog.Bool("cert", cfg.GRPCServerTLSCert != ""),
			slog.Bool("key", cfg.GRPCServerTLSKey != ""),
			slog.Bool("clientCA", cfg.GRPCServerTLSClientCA != ""),
		)
	}

	setString("prometheus.url", cfg.PrometheusURL)
	setString("prometheus.ready_timeout", cfg.PrometheusReadyTimeout)
	setString("tsdb.path", cfg.TSDBPath)
	setString("reloader.config-file", cfg.ReloaderConfigFile)
	setString("reloader.config-envsubst-file", cfg.ReloaderConfigEnvsubstFile)
	if len(cfg.ReloaderRuleDirs) > 0 {
		flags.Set("reloader.rule-dir", slices.Clone(cfg.ReloaderRuleDirs))
	}
	setString("reloader.watch-interval", cfg.ReloaderWatchInterval)
	setString("reloader.retry-interval", cfg.ReloaderRetryInterval)
	setString("objstore.config-file", cfg.ObjstoreConfigFile)
	flags.Set("shipper.upload-compacted", cfg.ShipperUploadCompacted)
	setString("min-time", cfg.MinTime)

	return flags
}

// mergeExtraParams applies extra over the typed flags: colliding keys are
// overwritten in place, new keys are appended in lexical order and nil
// values remove the flag.
func mergeExtraParams(flags *FlagMap, extra map[string]any) {
	for _, name := range slices.Sorted(maps.Keys(extra)) {
		value := extra[name]
		if value == nil {
			flags.Delete(name)
			continue
		}
		flags.Set(name, value)
	}
}
