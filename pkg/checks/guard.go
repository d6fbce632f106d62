package checks

import (
	"context"
	"log/slog"

	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

// Guard wraps an installer so that a descriptor violating the policy is
// never handed on.
func Guard(policy *Policy, next sidecar.Installer) sidecar.Installer {
	if policy == nil || policy.Len() == 0 {
		return next
	}
	return &guard{policy: policy, next: next}
}

type guard struct {
	policy *Policy
	next   sidecar.Installer
}

func (g *guard) Install(ctx context.Context, d *sidecar.ServiceDescriptor) error {
	if err := g.policy.Evaluate(d); err != nil {
		runctx.Logger(ctx, slog.String("context", "policy")).Error("install refused", "error", err)
		return err
	}
	return g.next.Install(ctx, d)
}
