package credentials

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/controllers/aws"
	"github.com/isometry/thanos-sidecar/pkg/controllers/k8s"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Option configures the clients shared by every source of one Resolve call.
type Option func(*manager)

// WithVaultClient uses client for every vault source.
func WithVaultClient(client *vault.Client) Option {
	return func(m *manager) {
		m.vault = client
	}
}

// WithAWSController uses ctl for the aws_sm and aws_ssm sources.
func WithAWSController(ctl *aws.Controller) Option {
	return func(m *manager) {
		m.aws = ctl
	}
}

// WithK8sController uses ctl for the k8s_secret and k8s_cm sources.
func WithK8sController(ctl *k8s.Controller) Option {
	return func(m *manager) {
		m.k8s = ctl
	}
}

type manager struct {
	vault *vault.Client
	aws   *aws.Controller
	k8s   *k8s.Controller

	lookupOwner func(user, group string) (uid, gid int, err error)
	chown       func(path string, uid, gid int) error
}

func newManager(opts ...Option) *manager {
	m := &manager{
		lookupOwner: lookupOwner,
		chown:       os.Chown,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookupOwner resolves user and group names to ids; an empty name maps to -1
// so os.Chown leaves that half unchanged.
func lookupOwner(username, group string) (int, int, error) {
	uid, gid := -1, -1
	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "failed to look up user %q", username)
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return 0, 0, errors.Wrapf(err, "user %q has a non-numeric uid", username)
		}
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "failed to look up group %q", group)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return 0, 0, errors.Wrapf(err, "group %q has a non-numeric gid", group)
		}
	}
	return uid, gid, nil
}

func (m *manager) awsController(ctx context.Context) (*aws.Controller, error) {
	if m.aws == nil {
		ctl, err := aws.NewController(ctx, aws.WithLogger(runctx.Logger(ctx)))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create AWS controller")
		}
		m.aws = ctl
	}
	return m.aws, nil
}

func (m *manager) k8sController() (*k8s.Controller, error) {
	if m.k8s == nil {
		ctl, err := k8s.NewController()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Kubernetes controller")
		}
		m.k8s = ctl
	}
	return m.k8s, nil
}

func (m *manager) vaultClient(address string) (*vault.Client, error) {
	if m.vault != nil {
		return m.vault, nil
	}
	cfg := vault.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the Vault client")
	}
	return client, nil
}

func (m *manager) source(ctx context.Context, kind string, params Params) (Source, error) {
	switch strings.ToLower(kind) {
	case TypeVault:
		return newVault(params, m)
	case TypeSM:
		return newSM(ctx, params, m)
	case TypeSSM:
		return newSSM(ctx, params, m)
	case TypeK8sSecret:
		return newK8sSecret(params, m)
	case TypeK8sCM:
		return newK8sCM(params, m)
	}
	return nil, errors.Errorf("unsupported source type %q", kind)
}

// Resolve fetches every configured secret and exposes it to cfg: env targets
// are set in cfg.EnvVars (replacing an existing assignment of the same name),
// file targets are written with mode 0600 and owned by cfg.User and
// cfg.Group so the sidecar can read them. Entries are processed in order and
// the first failure stops resolution.
func Resolve(ctx context.Context, entries []Entry, cfg *sidecar.ServiceConfig, opts ...Option) error {
	log := runctx.Logger(ctx, slog.String("context", "credentials"))
	m := newManager(opts...)

	for i, entry := range entries {
		for _, kind := range slices.Sorted(maps.Keys(entry)) {
			src, err := m.source(ctx, kind, entry[kind])
			if err != nil {
				return &SourceError{Index: i, Source: kind, Err: err}
			}
			secrets, err := src.Fetch(ctx)
			if err != nil {
				return &SourceError{Index: i, Source: src.Name(), Err: err}
			}
			for _, secret := range secrets {
				if err := m.expose(secret, cfg); err != nil {
					return &SourceError{Index: i, Source: src.Name(), Err: err}
				}
				log.Debug("secret exposed",
					slog.String("source", src.Name()),
					slog.String("path", secret.Entry.Path),
					slog.String("expose", secret.Entry.Expose),
					slog.String("target", secret.Entry.Destination()),
				)
			}
		}
	}
	return nil
}

func (m *manager) expose(secret Secret, cfg *sidecar.ServiceConfig) error {
	dest := secret.Entry.Destination()
	switch secret.Entry.Expose {
	case ExposeFile:
		if err := writeSecretFile(dest, secret.Value); err != nil {
			return err
		}
		return m.own(dest, cfg)
	default:
		if !envName.MatchString(dest) {
			return errors.Errorf("%q is not a valid environment variable name; set target", dest)
		}
		if strings.ContainsAny(secret.Value, "\r\n") {
			return errors.Errorf("value for %s contains a newline; expose it as a file", dest)
		}
		setEnv(cfg, dest, secret.Value)
		return nil
	}
}

func setEnv(cfg *sidecar.ServiceConfig, name, value string) {
	assignment := name + "=" + value
	for i, existing := range cfg.EnvVars {
		if strings.HasPrefix(existing, name+"=") {
			cfg.EnvVars[i] = assignment
			return
		}
	}
	cfg.EnvVars = append(cfg.EnvVars, assignment)
}

func (m *manager) own(path string, cfg *sidecar.ServiceConfig) error {
	if cfg.User == "" && cfg.Group == "" {
		return nil
	}
	uid, gid, err := m.lookupOwner(cfg.User, cfg.Group)
	if err != nil {
		return err
	}
	return errors.Wrapf(m.chown(path, uid, gid), "failed to hand secret file to %s:%s", cfg.User, cfg.Group)
}

func writeSecretFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create secret directory")
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return errors.Wrap(err, "failed to write secret file")
	}
	// WriteFile keeps the mode of an existing file.
	return errors.Wrap(os.Chmod(path, 0o600), "failed to restrict secret file")
}
