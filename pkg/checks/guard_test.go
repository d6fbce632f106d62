package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

type recordingInstaller struct {
	calls int
}

func (r *recordingInstaller) Install(context.Context, *sidecar.ServiceDescriptor) error {
	r.calls++
	return nil
}

func TestGuard(t *testing.T) {
	d := testDescriptor(t, nil)

	t.Run("empty policy passes through", func(t *testing.T) {
		next := &recordingInstaller{}
		policy, err := NewPolicy(nil)
		require.NoError(t, err)
		assert.Same(t, next, Guard(policy, next))
		assert.Same(t, next, Guard(nil, next))
	})

	t.Run("passing policy installs", func(t *testing.T) {
		next := &recordingInstaller{}
		policy, err := NewPolicy([]Expression{{Expression: `user == "thanos"`}})
		require.NoError(t, err)
		require.NoError(t, Guard(policy, next).Install(context.Background(), d))
		assert.Equal(t, 1, next.calls)
	})

	t.Run("violation blocks install", func(t *testing.T) {
		next := &recordingInstaller{}
		policy, err := NewPolicy([]Expression{{Expression: `tls`, Message: "TLS required"}})
		require.NoError(t, err)
		err = Guard(policy, next).Install(context.Background(), d)
		var policyErr *PolicyError
		require.ErrorAs(t, err, &policyErr)
		assert.Equal(t, 0, next.calls)
	})
}
