package root

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/thanos-sidecar/internal/testutil"
	"github.com/isometry/thanos-sidecar/pkg/checks"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

const baseConfig = `
thanos:
  user: thanos
  group: thanos
  bin_path: /usr/local/bin/thanos
  tsdb_path: /var/lib/prometheus
sidecar:
  ensure: present
  extra_params:
    min-time: -2w
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sidecar.yaml"), []byte(content), 0o644))
	return dir
}

func execute(t *testing.T, configDir string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := New()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--config-path", configDir, "--config-name", "sidecar", "--color", "never"))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRender(t *testing.T) {
	dir := writeConfig(t, baseConfig)

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, dir, "render")
		require.NoError(t, err)
		assert.Contains(t, out, "name: thanos-sidecar")
		assert.Contains(t, out, "tsdb.path: /var/lib/prometheus")
		assert.Contains(t, out, "min-time: -2w")
	})

	t.Run("unit", func(t *testing.T) {
		out, err := execute(t, dir, "render", "-o", "unit")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "[Unit]\n"))
		assert.Contains(t, out, "  --min-time=-2w")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, dir, "render", "-o", "toml")
		assert.ErrorContains(t, err, `unknown output format "toml"`)
	})
}

func TestRenderWithIncludes(t *testing.T) {
	out, err := execute(t, testutil.TestdataPath(t), "render", "-o", "json")
	require.NoError(t, err)

	for _, want := range []string{
		`"name": "grpc-server-tls-cert"`,
		`"value": "/etc/thanos/tls/server.crt"`,
		`"maxOpenFiles": 65536`,
		`"check": "tls"`,
		`"passed": true`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, `"passed": false`)
}

func TestRenderFailingCheck(t *testing.T) {
	dir := writeConfig(t, baseConfig+`
checks:
  - check: tls
    message: TLS required
`)

	out, err := execute(t, dir, "render")
	var policyErr *checks.PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Contains(t, out, "passed: false")
	assert.Contains(t, out, "message: TLS required")
}

func TestValidate(t *testing.T) {
	t.Run("eval", func(t *testing.T) {
		dir := writeConfig(t, baseConfig)
		out, err := execute(t, dir, "validate", "-o", "json", "--compact", "-e", "user")
		require.NoError(t, err)
		assert.Equal(t, `{"value":"thanos"}`+"\n", out)
	})

	t.Run("strict", func(t *testing.T) {
		dir := writeConfig(t, baseConfig+"unexpected: 1\n")
		_, err := execute(t, dir, "validate")
		assert.ErrorContains(t, err, "unknown configuration key(s): unexpected")
	})

	t.Run("invalid enum", func(t *testing.T) {
		dir := writeConfig(t, baseConfig+"  log_level: loud\n")
		_, err := execute(t, dir, "validate")
		assert.ErrorContains(t, err, "log_level")
	})
}

func TestApplyDryRun(t *testing.T) {
	unitDir := t.TempDir()

	t.Run("present", func(t *testing.T) {
		dir := writeConfig(t, baseConfig)
		out, err := execute(t, dir, "apply", "--dry-run", "--unit-dir", unitDir)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "# "+filepath.Join(unitDir, "thanos-sidecar.service")+"\n[Unit]\n"))
		assert.NoFileExists(t, filepath.Join(unitDir, "thanos-sidecar.service"))
	})

	t.Run("absent", func(t *testing.T) {
		dir := writeConfig(t, strings.Replace(baseConfig, "ensure: present", "ensure: absent", 1))
		out, err := execute(t, dir, "apply", "-n", "--unit-dir", unitDir)
		require.NoError(t, err)
		assert.Equal(t, "# would stop, disable and remove "+filepath.Join(unitDir, "thanos-sidecar.service")+"\n", out)
	})

	t.Run("policy violation", func(t *testing.T) {
		dir := writeConfig(t, baseConfig+"checks:\n  - 'user == \"root\"'\n")
		out, err := execute(t, dir, "apply", "-n", "--unit-dir", unitDir)
		var policyErr *checks.PolicyError
		require.ErrorAs(t, err, &policyErr)
		assert.Empty(t, out)
	})
}

func TestApplyInvalidConfigResolvesNoCredentials(t *testing.T) {
	var requests atomic.Int32
	vaultSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"data":{"config":"type: S3"},"metadata":{"version":1}}}`)
	}))
	t.Cleanup(vaultSrv.Close)

	secretFile := filepath.Join(t.TempDir(), "objstore.yml")
	dir := writeConfig(t, baseConfig+fmt.Sprintf(`  log_level: verbose
credentials:
  - vault:
      address: %s
      path: thanos/objstore
      key: config
      expose: file
      target: %s
`, vaultSrv.URL, secretFile))

	_, err := execute(t, dir, "apply", "--unit-dir", t.TempDir())
	require.ErrorIs(t, err, sidecar.ErrInvalidEnumValue)
	assert.ErrorContains(t, err, "log_level")
	assert.Zero(t, requests.Load())
	assert.NoFileExists(t, secretFile)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	v := viper.New()
	v.Set("log-format", "json")
	v.Set("log-level", 3)

	logger := newLogger(v, &buf)
	logger.Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	v.Set("log-level", 0)
	v.Set("log-format", "text")
	logger = newLogger(v, &buf)
	logger.Warn("quiet")
	assert.Empty(t, buf.String())
	logger.Error("loud")
	assert.Contains(t, buf.String(), "msg=loud")
}
