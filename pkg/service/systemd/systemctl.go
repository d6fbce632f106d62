package systemd

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/runctx"
)

// DefaultCommandTimeout bounds a single systemctl invocation.
const DefaultCommandTimeout = 30 * time.Second

// Runner executes systemctl with the given arguments and returns its
// combined output.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs the systemctl binary.
type ExecRunner struct {
	Binary  string
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	if runtime.GOOS != "linux" {
		return "", errors.Errorf("systemctl is only supported on linux, not %s", runtime.GOOS)
	}

	binary := r.Binary
	if binary == "" {
		binary = "systemctl"
	}
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := exec.CommandContext(cmdCtx, binary, args...).CombinedOutput()
	out := strings.TrimSpace(string(output))

	runctx.Logger(ctx).Debug("systemctl",
		slog.String("args", strings.Join(args, " ")),
		slog.String("output", out),
	)

	if err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return out, errors.Wrapf(err, "systemctl %s timed out", args[0])
		}
		return out, errors.Wrapf(err, "systemctl %s: %s", strings.Join(args, " "), out)
	}
	return out, nil
}

// Systemctl wraps the unit lifecycle commands.
type Systemctl struct {
	runner Runner
}

func NewSystemctl(runner Runner) *Systemctl {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Systemctl{runner: runner}
}

func (s *Systemctl) DaemonReload(ctx context.Context) error {
	_, err := s.runner.Run(ctx, "daemon-reload")
	return err
}

func (s *Systemctl) Enable(ctx context.Context, unit string) error {
	_, err := s.runner.Run(ctx, "enable", unit)
	return err
}

func (s *Systemctl) Disable(ctx context.Context, unit string) error {
	_, err := s.runner.Run(ctx, "disable", unit)
	return err
}

func (s *Systemctl) Start(ctx context.Context, unit string) error {
	_, err := s.runner.Run(ctx, "start", unit)
	return err
}

func (s *Systemctl) Stop(ctx context.Context, unit string) error {
	_, err := s.runner.Run(ctx, "stop", unit)
	return err
}

func (s *Systemctl) Restart(ctx context.Context, unit string) error {
	_, err := s.runner.Run(ctx, "restart", unit)
	return err
}

// IsActive reports whether the unit is running. systemctl exits non-zero
// for inactive units, so only the printed state is consulted.
func (s *Systemctl) IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := s.runner.Run(ctx, "is-active", unit)
	switch out {
	case "active", "reloading", "activating":
		return true, nil
	case "inactive", "failed", "unknown", "deactivating":
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return false, errors.Errorf("unexpected state %q for %s", out, unit)
}
