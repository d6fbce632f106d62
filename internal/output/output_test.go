package output

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/probe"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

func testReport(t *testing.T) *Report {
	t.Helper()
	cfg := sidecar.ServiceConfig{
		User:     "thanos",
		Group:    "thanos",
		BinPath:  "/usr/local/bin/thanos",
		TSDBPath: "/var/lib/prometheus",
	}
	cfg.SetDefaults()
	d, err := sidecar.Build(context.Background(), cfg)
	require.NoError(t, err)

	return &Report{
		Descriptor: d,
		Checks: []checks.Outcome{
			{Expression: `user == "thanos"`, Passed: true},
			{Expression: `tls`, Passed: false, Message: "TLS required"},
		},
		Probes: []probe.Result{
			{Type: probe.TypeHTTP, Address: "127.0.0.1:10902", Ready: true, Duration: 250 * time.Millisecond},
			{Type: probe.TypeGRPC, Address: "127.0.0.1:10901", Skipped: true, Message: "client certificate required"},
		},
	}
}

func TestFormatNames(t *testing.T) {
	assert.Equal(t, []string{"json", "junit", "unit", "yaml"}, FormatNames())
}

func TestYAMLFormatter(t *testing.T) {
	f, ok := GetFormatter("yaml")
	require.True(t, ok)

	out, err := f.Format(testReport(t), Config{})
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, "descriptor:\n  name: thanos-sidecar\n")
	assert.Contains(t, s, "  flags:\n    log.level: info\n")
	assert.Contains(t, s, "    tsdb.path: /var/lib/prometheus\n")
	assert.Contains(t, s, "  - check: tls\n    passed: false\n    message: TLS required")
	assert.Contains(t, s, "duration: 250ms")
	assert.NotContains(t, s, "\x1b[")
	assert.False(t, strings.HasSuffix(s, "\n"))
}

func TestYAMLFormatterColorize(t *testing.T) {
	f, _ := GetFormatter("yaml")
	out, err := f.Format(testReport(t), Config{Colorize: true})
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, "\x1b[36mdescriptor\x1b[0m:")
	assert.Contains(t, s, "\x1b[36mpassed\x1b[0m: \x1b[32mtrue\x1b[0m")
	assert.Contains(t, s, "\x1b[36mpassed\x1b[0m: \x1b[31mfalse\x1b[0m")
}

func TestJSONFormatter(t *testing.T) {
	f, ok := GetFormatter("json")
	require.True(t, ok)

	out, err := f.Format(testReport(t), Config{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "\n  \"descriptor\": {")

	var decoded struct {
		Descriptor struct {
			Name  string `json:"name"`
			Flags []struct {
				Name  string `json:"name"`
				Value any    `json:"value"`
			} `json:"flags"`
		} `json:"descriptor"`
		Checks []checks.Outcome `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "thanos-sidecar", decoded.Descriptor.Name)
	require.NotEmpty(t, decoded.Descriptor.Flags)
	assert.Equal(t, "log.level", decoded.Descriptor.Flags[0].Name)
	assert.Len(t, decoded.Checks, 2)

	compact, err := f.Format(testReport(t), Config{Compact: true})
	require.NoError(t, err)
	assert.NotContains(t, string(compact), "\n")
}

func TestUnitFormatter(t *testing.T) {
	f, ok := GetFormatter("unit")
	require.True(t, ok)

	out, err := f.Format(testReport(t), Config{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "[Unit]\n"))
	assert.Contains(t, string(out), "ExecStart=/usr/local/bin/thanos sidecar")

	_, err = f.Format(&Report{}, Config{})
	assert.ErrorContains(t, err, "requires a service descriptor")
}

func TestJUnitFormatter(t *testing.T) {
	f, ok := GetFormatter("junit")
	require.True(t, ok)

	out, err := f.Format(testReport(t), Config{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(out), xml.Header))

	var suites junitTestSuites
	require.NoError(t, xml.Unmarshal(out, &suites))
	assert.Equal(t, "thanos-sidecar", suites.Name)
	assert.Equal(t, 4, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Skipped)
	assert.InDelta(t, 0.25, suites.Time, 1e-9)

	require.Len(t, suites.Suites, 2)
	policy := suites.Suites[0]
	assert.Equal(t, "policy", policy.Name)
	assert.Nil(t, policy.Cases[0].Failure)
	require.NotNil(t, policy.Cases[1].Failure)
	assert.Equal(t, "TLS required", policy.Cases[1].Failure.Message)

	readiness := suites.Suites[1]
	assert.Equal(t, "readiness", readiness.Name)
	require.NotNil(t, readiness.Cases[1].Skipped)
	assert.Equal(t, "client certificate required", readiness.Cases[1].Skipped.Message)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, &Report{Value: true}, Config{Format: "json", Compact: true}))
	assert.Equal(t, "{\"value\":true}\n", buf.String())

	err := Print(&buf, &Report{}, Config{Format: "toml"})
	assert.ErrorContains(t, err, `unknown output format "toml" (available: json, junit, unit, yaml)`)
}

func TestConfigFromViper(t *testing.T) {
	v := viper.New()
	cfg := ConfigFromViper(v)
	assert.Equal(t, "yaml", cfg.Format)

	v.Set("output-format", "json")
	v.Set("compact", true)
	v.Set("color", "always")
	assert.Equal(t, Config{Format: "json", Compact: true, Colorize: true}, ConfigFromViper(v))

	v.Set("color", "never")
	assert.False(t, ConfigFromViper(v).Colorize)
}
