package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/credentials"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelError)
}

func TestDecode(t *testing.T) {
	settings := map[string]any{
		"thanos": map[string]any{
			"tsdb_path":            "/var/lib/prometheus",
			"objstore_config_file": "/etc/thanos/objstore.yml",
		},
		"sidecar": map[string]any{
			"ensure":             "present",
			"log_level":          "debug",
			"max_open_files":     "65536",
			"reloader_rule_dirs": []any{"/etc/prometheus/rules"},
			"extra_params":       map[string]any{"min-time": "-2w"},
		},
		"credentials": []any{
			map[string]any{"vault": map[string]any{"path": "thanos/objstore"}},
		},
		"checks": []any{
			"tls",
			map[string]any{"check": `user != "root"`, "message": "not as root"},
		},
		"install": map[string]any{
			"verify":         true,
			"verify_timeout": "1m",
		},
		"includes": []any{},
	}

	doc, warning, err := Decode(settings, true)
	require.NoError(t, err)
	assert.Nil(t, warning)

	assert.Equal(t, Globals{
		User:               "thanos",
		Group:              "thanos",
		BinPath:            "/usr/local/bin/thanos",
		TSDBPath:           "/var/lib/prometheus",
		ObjstoreConfigFile: "/etc/thanos/objstore.yml",
	}, doc.Thanos)

	assert.Equal(t, sidecar.LogLevelDebug, doc.Sidecar.LogLevel)
	require.NotNil(t, doc.Sidecar.MaxOpenFiles)
	assert.Equal(t, 65536, *doc.Sidecar.MaxOpenFiles)
	assert.Equal(t, []string{"/etc/prometheus/rules"}, doc.Sidecar.ReloaderRuleDirs)
	assert.Equal(t, map[string]any{"min-time": "-2w"}, doc.Sidecar.ExtraParams)

	assert.Equal(t, []credentials.Entry{{"vault": {"path": "thanos/objstore"}}}, doc.Credentials)
	assert.Equal(t, []checks.Expression{
		{Expression: "tls"},
		{Expression: `user != "root"`, Message: "not as root"},
	}, doc.Checks)

	assert.Equal(t, Install{
		UnitDir:       "/etc/systemd/system",
		Verify:        true,
		VerifyTimeout: time.Minute,
	}, doc.Install)
}

func TestDecodeUnknownKeys(t *testing.T) {
	settings := map[string]any{
		"sidecar": map[string]any{"log_levle": "debug"},
		"extra":   true,
	}

	doc, warning, err := Decode(settings, false)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.NotNil(t, warning)
	assert.Equal(t, []string{"extra", "sidecar.log_levle"}, warning.Keys)

	_, _, err = Decode(settings, true)
	var unused *UnusedKeysWarning
	require.ErrorAs(t, err, &unused)
	assert.EqualError(t, err, "unknown configuration key(s): extra, sidecar.log_levle")
}

func TestDecodeTypeError(t *testing.T) {
	_, _, err := Decode(map[string]any{"install": map[string]any{"verify_timeout": "soon"}}, false)
	assert.ErrorContains(t, err, "failed to decode configuration")
}

func TestGlobalsInject(t *testing.T) {
	g := Globals{
		User:               "thanos",
		Group:              "thanos",
		BinPath:            "/usr/local/bin/thanos",
		TSDBPath:           "/var/lib/prometheus",
		ObjstoreConfigFile: "/etc/thanos/objstore.yml",
	}

	cfg := sidecar.ServiceConfig{User: "prometheus", TSDBPath: "/data"}
	g.Inject(&cfg)

	assert.Equal(t, "prometheus", cfg.User)
	assert.Equal(t, "thanos", cfg.Group)
	assert.Equal(t, "/usr/local/bin/thanos", cfg.BinPath)
	assert.Equal(t, "/data", cfg.TSDBPath)
	assert.Equal(t, "/etc/thanos/objstore.yml", cfg.ObjstoreConfigFile)
}

func TestDocumentServiceConfig(t *testing.T) {
	doc, _, err := Decode(map[string]any{
		"sidecar": map[string]any{"env_vars": []any{"A=1"}},
	}, true)
	require.NoError(t, err)

	cfg := doc.ServiceConfig()
	cfg.EnvVars[0] = "B=2"

	assert.Equal(t, "thanos", cfg.User)
	assert.Equal(t, sidecar.EnsurePresent, cfg.Ensure)
	assert.Equal(t, "0.0.0.0:10902", cfg.HTTPAddress)
	assert.Equal(t, []string{"A=1"}, doc.Sidecar.EnvVars)
	assert.Empty(t, doc.Sidecar.User)
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "globals.yaml", "thanos:\n  user: prometheus\n")
	writeFile(t, dir, "thanos-sidecar.yaml", `
includes:
  - globals
sidecar:
  log_format: json
  extra_params:
    log.request.decision: NoRequest
install:
  unit_dir: /run/systemd/system
`)

	loader := NewLoader([]string{dir}, "thanos-sidecar", true)
	doc, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Contains(t, loader.ConfigFileUsed(), "thanos-sidecar.yaml")
	assert.Equal(t, "prometheus", doc.Thanos.User)
	assert.Equal(t, sidecar.LogFormatJSON, doc.Sidecar.LogFormat)
	assert.Equal(t, map[string]any{"log.request.decision": "NoRequest"}, doc.Sidecar.ExtraParams)
	assert.Equal(t, "/run/systemd/system", doc.Install.UnitDir)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader([]string{t.TempDir()}, "thanos-sidecar", false)
	doc, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, loader.ConfigFileUsed())
	assert.Equal(t, "/etc/systemd/system", doc.Install.UnitDir)
	assert.Equal(t, "thanos", doc.Thanos.User)

	err = loader.Watch(context.Background(), func(context.Context, *Document) {})
	assert.EqualError(t, err, "no configuration file to watch")
}

func TestLoaderStrict(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "thanos-sidecar.yaml", "sidecar:\n  bogus: 1\n")

	_, err := NewLoader([]string{dir}, "thanos-sidecar", true).Load(context.Background())
	assert.ErrorContains(t, err, "sidecar.bogus")

	doc, err := NewLoader([]string{dir}, "thanos-sidecar", false).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestLoaderWatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "thanos-sidecar.yaml", "sidecar:\n  log_level: info\n")

	loader := NewLoader([]string{dir}, "thanos-sidecar", false)
	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	changes := make(chan *Document, 16)
	require.NoError(t, loader.Watch(context.Background(), func(_ context.Context, doc *Document) {
		select {
		case changes <- doc:
		default:
		}
	}))

	writeFile(t, dir, "thanos-sidecar.yaml", "sidecar:\n  log_level: warn\n")

	timeout := time.After(5 * time.Second)
	for {
		select {
		case doc := <-changes:
			// a write may surface as several events; wait for the final content
			if doc.Sidecar.LogLevel == sidecar.LogLevelWarn {
				return
			}
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}
