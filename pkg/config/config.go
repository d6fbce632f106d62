// Package config loads the sidecar service configuration file and decodes it
// into typed sections.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mcuadros/go-defaults"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/credentials"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

// Globals holds values shared by every thanos component on the host. They
// are injected into the sidecar config by the caller, never looked up by
// the builder.
type Globals struct {
	User               string `mapstructure:"user" default:"thanos"`
	Group              string `mapstructure:"group" default:"thanos"`
	BinPath            string `mapstructure:"bin_path" default:"/usr/local/bin/thanos"`
	TSDBPath           string `mapstructure:"tsdb_path"`
	ObjstoreConfigFile string `mapstructure:"objstore_config_file"`
}

// Inject copies globals into the unset fields of cfg.
func (g Globals) Inject(cfg *sidecar.ServiceConfig) {
	fill := func(dst *string, value string) {
		if *dst == "" {
			*dst = value
		}
	}
	fill(&cfg.User, g.User)
	fill(&cfg.Group, g.Group)
	fill(&cfg.BinPath, g.BinPath)
	fill(&cfg.TSDBPath, g.TSDBPath)
	fill(&cfg.ObjstoreConfigFile, g.ObjstoreConfigFile)
}

// Install configures the service installer.
type Install struct {
	UnitDir       string        `mapstructure:"unit_dir" default:"/etc/systemd/system"`
	Verify        bool          `mapstructure:"verify" default:"false"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" default:"30s"`
	// VerifyInsecure skips certificate verification when probing a TLS
	// enabled gRPC endpoint.
	VerifyInsecure bool `mapstructure:"verify_insecure"`
	// VerifyServerName is the name expected in the gRPC server certificate.
	VerifyServerName string `mapstructure:"verify_server_name"`
	// VerifyCAFile is a PEM bundle trusted for the gRPC server certificate.
	VerifyCAFile string `mapstructure:"verify_ca_file"`
}

// Document is a decoded configuration file.
type Document struct {
	Thanos      Globals               `mapstructure:"thanos"`
	Sidecar     sidecar.ServiceConfig `mapstructure:"sidecar"`
	Credentials []credentials.Entry   `mapstructure:"credentials"`
	Checks      []checks.Expression   `mapstructure:"checks"`
	Install     Install               `mapstructure:"install"`
}

// ServiceConfig returns the sidecar config with globals injected and
// defaults applied. The document itself is left untouched.
func (d *Document) ServiceConfig() sidecar.ServiceConfig {
	cfg := d.Sidecar.Clone()
	d.Thanos.Inject(&cfg)
	cfg.SetDefaults()
	return cfg
}

// UnusedKeysWarning reports configuration keys that matched no field.
type UnusedKeysWarning struct {
	Keys []string
}

func (e *UnusedKeysWarning) Error() string {
	return fmt.Sprintf("unknown configuration key(s): %s", strings.Join(e.Keys, ", "))
}

// Decode turns raw settings into a Document. In strict mode unknown keys
// are an error; otherwise they are returned as a warning alongside the
// document.
func Decode(settings map[string]any, strict bool) (*Document, *UnusedKeysWarning, error) {
	doc := &Document{}
	var meta mapstructure.Metadata

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           doc,
		Metadata:         &meta,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			checks.StringToExpressionHookFunc(),
		),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	defaults.SetDefaults(&doc.Thanos)
	defaults.SetDefaults(&doc.Install)

	var warning *UnusedKeysWarning
	if unused := knownUnused(meta.Unused); len(unused) > 0 {
		warning = &UnusedKeysWarning{Keys: unused}
		if strict {
			return nil, nil, warning
		}
	}

	return doc, warning, nil
}

func knownUnused(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == includesKey {
			continue
		}
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}

// Loader reads the configuration file from a set of search paths.
type Loader struct {
	paths  []string
	name   string
	strict bool

	mu sync.Mutex
	v  *viper.Viper
}

func NewLoader(paths []string, name string, strict bool) *Loader {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	return &Loader{paths: paths, name: name, strict: strict}
}

// ConfigFileUsed returns the path of the file read by the last Load.
func (l *Loader) ConfigFileUsed() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.v == nil {
		return ""
	}
	return l.v.ConfigFileUsed()
}

// Load reads the configuration file. A missing file yields a document made
// of defaults.
func (l *Loader) Load(ctx context.Context) (*Document, error) {
	log := runctx.Logger(ctx, slog.String("context", "config"))
	log.Debug("loading config", slog.Any("paths", l.paths), slog.String("name", l.name))

	v := runctx.NewViper()
	for _, path := range l.paths {
		v.AddConfigPath(path)
	}
	v.SetConfigName(l.name)

	l.mu.Lock()
	l.v = v
	l.mu.Unlock()

	settings := map[string]any{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Error("error reading config", "error", err)
			return nil, err
		}
		log.Info("no configuration file found - using defaults")
	} else {
		log = log.With(slog.String("configFile", v.ConfigFileUsed()))
		if settings, err = l.resolve(v); err != nil {
			log.Error("error resolving includes", "error", err)
			return nil, err
		}
	}

	doc, warning, err := Decode(settings, l.strict)
	if err != nil {
		log.Error("failed to load config", "error", err)
		return nil, err
	}
	if warning != nil {
		log.Warn("ignoring unknown configuration keys", slog.Any("keys", warning.Keys))
	}

	log.Info("config loaded",
		slog.Int("credentials", len(doc.Credentials)),
		slog.Int("checks", len(doc.Checks)),
	)
	return doc, nil
}

func (l *Loader) resolve(v *viper.Viper) (map[string]any, error) {
	file := v.ConfigFileUsed()
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	chain := includeChain{{Path: filepath.Base(file), Hash: contentHash(content)}}
	return resolveIncludes(v.AllSettings(), filepath.Dir(file), chain)
}

// Watch reloads the configuration whenever the file changes and passes the
// new document to onChange. Load must have found a file first.
func (l *Loader) Watch(ctx context.Context, onChange func(context.Context, *Document)) error {
	l.mu.Lock()
	v := l.v
	l.mu.Unlock()

	if v == nil || v.ConfigFileUsed() == "" {
		return errors.New("no configuration file to watch")
	}

	log := runctx.Logger(ctx, slog.String("context", "config"), slog.String("configFile", v.ConfigFileUsed()))
	v.OnConfigChange(func(e fsnotify.Event) {
		// viper has already re-read the file by the time this runs
		log.Debug("config change", slog.String("op", e.Op.String()))
		settings, err := l.resolve(v)
		if err != nil {
			log.Error("error resolving includes", "error", err)
			return
		}
		doc, _, err := Decode(settings, l.strict)
		if err != nil {
			log.Error("failed to update config", "error", err)
			return
		}
		log.Info("config updated")
		onChange(ctx, doc)
	})
	v.WatchConfig()

	return nil
}
