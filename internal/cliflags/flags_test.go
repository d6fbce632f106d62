package cliflags

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/thanos-sidecar/pkg/runctx"
)

func TestRegisterAndBind(t *testing.T) {
	parent := &cobra.Command{Use: "parent"}
	FlagValues{
		"log-level": {Shorthand: "v", Kind: FlagKindCount, Usage: "verbosity"},
	}.Register(parent.PersistentFlags(), true)

	cmd := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	Merge(ConfigFlags(), InstallFlags(), TimeoutFlags(), FlagValues{
		"eval": {Kind: FlagKindStringArray, DefaultValue: []string{}, Usage: "expressions"},
	}).Register(cmd.Flags(), false)
	parent.AddCommand(cmd)

	parent.SetArgs([]string{"child", "-vv", "-n", "--timeout", "3s",
		"--config-path", "/a,/b", "--eval", "a, b", "--eval", "c"})
	require.NoError(t, parent.Execute())

	v := runctx.NewViper()
	BindFlags(cmd, v)

	assert.Equal(t, 2, v.GetInt("log-level"))
	assert.True(t, v.GetBool("dry-run"))
	assert.False(t, v.GetBool("skip-credentials"))
	assert.Equal(t, 3*time.Second, v.GetDuration("timeout"))
	assert.Equal(t, []string{"a, b", "c"}, v.GetStringSlice("eval"))

	paths, name := ConfigPaths(v)
	assert.Equal(t, []string{"/a", "/b"}, paths)
	assert.Equal(t, "thanos-sidecar", name)
}
