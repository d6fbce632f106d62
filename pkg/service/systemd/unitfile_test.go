package systemd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"thanos-sidecar.service", true},
		{"thanos-sidecar@eu.service", true},
		{"", false},
		{"thanos-sidecar", false},
		{".service", false},
		{"../thanos.service", false},
		{"a/b.service", false},
		{`a\b.service`, false},
		{"thanos sidecar.service", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestUnitFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "units")
	files := NewUnitFiles(dir)
	assert.Equal(t, dir, files.Dir())
	assert.Equal(t, DefaultUnitDir, NewUnitFiles("").Dir())

	_, exists, err := files.Read("thanos-sidecar.service")
	require.NoError(t, err)
	assert.False(t, exists)

	changed, err := files.Write("thanos-sidecar.service", "[Unit]\n", UnitMode)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = files.Write("thanos-sidecar.service", "[Unit]\n", UnitMode)
	require.NoError(t, err)
	assert.False(t, changed)

	content, exists, err := files.Read("thanos-sidecar.service")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "[Unit]\n", content)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	removed, err := files.Remove("thanos-sidecar.service")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = files.Remove("thanos-sidecar.service")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = files.Write("../escape.service", "x", UnitMode)
	assert.Error(t, err)
}

func TestUnitFilesMode(t *testing.T) {
	dir := t.TempDir()
	files := NewUnitFiles(dir)
	path := filepath.Join(dir, "thanos-sidecar.service")

	_, err := files.Write("thanos-sidecar.service", "[Unit]\n", UnitMode)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	changed, err := files.Write("thanos-sidecar.service", "[Unit]\n", PrivateUnitMode)
	require.NoError(t, err)
	assert.False(t, changed)
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "identical content still narrows the mode")
}
