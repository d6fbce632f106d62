package sidecar

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/mcuadros/go-defaults"
)

// ServiceConfig is the typed input describing one sidecar service.
// Empty optional strings mean "unset" and never reach the flag map.
type ServiceConfig struct {
	Ensure       Ensure `mapstructure:"ensure" default:"present"`
	User         string `mapstructure:"user"`
	Group        string `mapstructure:"group"`
	BinPath      string `mapstructure:"bin_path"`
	MaxOpenFiles *int   `mapstructure:"max_open_files"`

	LogLevel          LogLevel  `mapstructure:"log_level" default:"info"`
	LogFormat         LogFormat `mapstructure:"log_format" default:"logfmt"`
	TracingConfigFile string    `mapstructure:"tracing_config_file"`

	HTTPAddress     string `mapstructure:"http_address" default:"0.0.0.0:10902"`
	HTTPGracePeriod string `mapstructure:"http_grace_period" default:"2m"`
	GRPCAddress     string `mapstructure:"grpc_address" default:"0.0.0.0:10901"`
	GRPCGracePeriod string `mapstructure:"grpc_grace_period" default:"2m"`

	GRPCServerTLSCert     string `mapstructure:"grpc_server_tls_cert"`
	GRPCServerTLSKey      string `mapstructure:"grpc_server_tls_key"`
	GRPCServerTLSClientCA string `mapstructure:"grpc_server_tls_client_ca"`

	PrometheusURL          string `mapstructure:"prometheus_url" default:"http://localhost:9090"`
	PrometheusReadyTimeout string `mapstructure:"prometheus_ready_timeout" default:"10m"`
	TSDBPath               string `mapstructure:"tsdb_path"`

	ReloaderConfigFile         string   `mapstructure:"reloader_config_file"`
	ReloaderConfigEnvsubstFile string   `mapstructure:"reloader_config_envsubst_file"`
	ReloaderRuleDirs           []string `mapstructure:"reloader_rule_dirs"`
	ReloaderWatchInterval      string   `mapstructure:"reloader_watch_interval" default:"3m"`
	ReloaderRetryInterval      string   `mapstructure:"reloader_retry_interval" default:"5s"`

	ObjstoreConfigFile     string `mapstructure:"objstore_config_file"`
	ShipperUploadCompacted bool   `mapstructure:"shipper_upload_compacted" default:"false"`
	MinTime                string `mapstructure:"min_time"`

	// ExtraParams is passed through to the flag map without validation.
	ExtraParams map[string]any `mapstructure:"extra_params"`
	EnvVars     []string       `mapstructure:"env_vars"`
}

// SetDefaults fills every unset field that declares a default.
func (c *ServiceConfig) SetDefaults() {
	defaults.SetDefaults(c)
}

// Validate checks the enumerated fields in declaration order and returns the
// first violation.
func (c *ServiceConfig) Validate() error {
	if err := c.Ensure.Validate(); err != nil {
		return err
	}
	if err := c.LogLevel.Validate(); err != nil {
		return err
	}
	return c.LogFormat.Validate()
}

// TLSEnabled reports whether the gRPC server has both halves of its key pair.
func (c *ServiceConfig) TLSEnabled() bool {
	return c.GRPCServerTLSCert != "" && c.GRPCServerTLSKey != ""
}

// Clone returns a deep copy so callers may mutate the result freely.
func (c ServiceConfig) Clone() ServiceConfig {
	if c.MaxOpenFiles != nil {
		n := *c.MaxOpenFiles
		c.MaxOpenFiles = &n
	}
	c.ReloaderRuleDirs = slices.Clone(c.ReloaderRuleDirs)
	c.ExtraParams = maps.Clone(c.ExtraParams)
	c.EnvVars = slices.Clone(c.EnvVars)
	return c
}

func (c *ServiceConfig) LogValue() slog.Value {
	logAttr := []slog.Attr{
		slog.String("ensure", string(c.Ensure)),
		slog.String("user", c.User),
		slog.String("group", c.Group),
		slog.String("binPath", c.BinPath),
		slog.String("httpAddress", c.HTTPAddress),
		slog.String("grpcAddress", c.GRPCAddress),
		slog.Bool("tls", c.TLSEnabled()),
		slog.Int("ruleDirs", len(c.ReloaderRuleDirs)),
		slog.Int("extraParams", len(c.ExtraParams)),
		slog.Int("envVars", len(c.EnvVars)),
	}
	return slog.GroupValue(logAttr...)
}
