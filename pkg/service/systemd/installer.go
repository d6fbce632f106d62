package systemd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

// InstallError reports the installation step that failed.
type InstallError struct {
	Unit string
	Step string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %s: %v", e.Unit, e.Step, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Installer converges a systemd unit onto a service descriptor.
type Installer struct {
	files     *UnitFiles
	systemctl *Systemctl
}

var _ sidecar.Installer = (*Installer)(nil)

type Option func(*Installer)

// WithRunner replaces the systemctl runner.
func WithRunner(runner Runner) Option {
	return func(i *Installer) {
		i.systemctl = NewSystemctl(runner)
	}
}

func NewInstaller(unitDir string, opts ...Option) *Installer {
	i := &Installer{
		files:     NewUnitFiles(unitDir),
		systemctl: NewSystemctl(nil),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install writes and starts the unit for a running descriptor, or stops and
// removes it for a stopped one. Repeating an install with an unchanged
// descriptor leaves a running service alone.
func (i *Installer) Install(ctx context.Context, d *sidecar.ServiceDescriptor) error {
	unit := UnitName(d.Name)
	log := runctx.Logger(ctx, slog.String("unit", unit))

	if err := ValidateName(unit); err != nil {
		return &InstallError{Unit: unit, Step: "validate", Err: err}
	}

	switch d.RunState {
	case sidecar.RunStateRunning:
		return i.ensureRunning(ctx, log, unit, d)
	case sidecar.RunStateStopped:
		return i.ensureStopped(ctx, log, unit)
	}
	return &InstallError{Unit: unit, Step: "validate", Err: errors.Errorf("unknown run state %q", d.RunState)}
}

func (i *Installer) ensureRunning(ctx context.Context, log *slog.Logger, unit string, d *sidecar.ServiceDescriptor) error {
	content, err := Render(d)
	if err != nil {
		return &InstallError{Unit: unit, Step: "render", Err: err}
	}

	changed, err := i.files.Write(unit, content, unitMode(d))
	if err != nil {
		return &InstallError{Unit: unit, Step: "write", Err: err}
	}

	if changed {
		log.Info("unit file updated", slog.String("dir", i.files.Dir()))
		if err := i.systemctl.DaemonReload(ctx); err != nil {
			return &InstallError{Unit: unit, Step: "daemon-reload", Err: err}
		}
	}
	if err := i.systemctl.Enable(ctx, unit); err != nil {
		return &InstallError{Unit: unit, Step: "enable", Err: err}
	}

	if changed {
		if err := i.systemctl.Restart(ctx, unit); err != nil {
			return &InstallError{Unit: unit, Step: "restart", Err: err}
		}
		log.Info("service restarted")
		return nil
	}
	if err := i.systemctl.Start(ctx, unit); err != nil {
		return &InstallError{Unit: unit, Step: "start", Err: err}
	}
	log.Debug("service unchanged")
	return nil
}

// unitMode keeps units carrying Environment= values readable by root only.
func unitMode(d *sidecar.ServiceDescriptor) fs.FileMode {
	if len(d.EnvVars) > 0 {
		return PrivateUnitMode
	}
	return UnitMode
}

func (i *Installer) ensureStopped(ctx context.Context, log *slog.Logger, unit string) error {
	_, exists, err := i.files.Read(unit)
	if err != nil {
		return &InstallError{Unit: unit, Step: "read", Err: err}
	}
	if !exists {
		log.Debug("unit already absent")
		return nil
	}

	if err := i.systemctl.Stop(ctx, unit); err != nil {
		return &InstallError{Unit: unit, Step: "stop", Err: err}
	}
	if err := i.systemctl.Disable(ctx, unit); err != nil {
		return &InstallError{Unit: unit, Step: "disable", Err: err}
	}
	if _, err := i.files.Remove(unit); err != nil {
		return &InstallError{Unit: unit, Step: "remove", Err: err}
	}
	if err := i.systemctl.DaemonReload(ctx); err != nil {
		return &InstallError{Unit: unit, Step: "daemon-reload", Err: err}
	}
	log.Info("service removed")
	return nil
}

// DryRun prints what Installer would do without touching the system.
type DryRun struct {
	UnitDir string
	Out     io.Writer
}

var _ sidecar.Installer = (*DryRun)(nil)

func (r *DryRun) Install(_ context.Context, d *sidecar.ServiceDescriptor) error {
	unit := UnitName(d.Name)
	path := filepath.Join(NewUnitFiles(r.UnitDir).Dir(), unit)

	if d.RunState == sidecar.RunStateStopped {
		_, err := fmt.Fprintf(r.Out, "# would stop, disable and remove %s\n", path)
		return err
	}

	content, err := Render(d)
	if err != nil {
		return &InstallError{Unit: unit, Step: "render", Err: err}
	}
	_, err = fmt.Fprintf(r.Out, "# %s\n%s", path, content)
	return err
}
