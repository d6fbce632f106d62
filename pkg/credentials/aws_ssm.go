package credentials

import (
	"context"

	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/controllers/aws"
	"github.com/isometry/thanos-sidecar/pkg/utils"
)

const TypeSSM = "aws_ssm"

type SSMKeyEntry struct {
	KeyEntry   `mapstructure:",squash"`
	Decryption bool `mapstructure:"decryption"`
}

// SSM reads AWS Systems Manager parameters. Decryption set at the source
// level applies to every key.
type SSM struct {
	ctl *aws.Controller

	SSMKeyEntry `mapstructure:",squash"`
	Keys        []SSMKeyEntry `mapstructure:"keys"`
}

func newSSM(ctx context.Context, params Params, m *manager) (*SSM, error) {
	s := new(SSM)
	if err := decodeParams(params, s); err != nil {
		return nil, err
	}
	ctl, err := m.awsController(ctx)
	if err != nil {
		return nil, err
	}
	s.ctl = ctl
	return s, nil
}

func (s *SSM) Name() string {
	return TypeSSM
}

func (s *SSM) Fetch(ctx context.Context) ([]Secret, error) {
	entries := make([]KeyEntry, len(s.Keys))
	for i, k := range s.Keys {
		entries[i] = k.KeyEntry
	}
	keys, err := collectKeys(s.KeyEntry, entries)
	if err != nil {
		return nil, err
	}

	// collectKeys keeps the primary entry first when it has a path.
	decrypt := make([]bool, 0, len(keys))
	if s.Path != "" {
		decrypt = append(decrypt, s.Decryption)
	}
	for _, k := range s.Keys {
		decrypt = append(decrypt, s.Decryption || k.Decryption)
	}

	secrets := make([]Secret, 0, len(keys))
	for i, p := range keys {
		ctx, cancel := utils.WithOptionalTimeout(ctx, p.Timeout)
		var secret any
		if p.Key == "" {
			secret, err = s.ctl.GetSystemsManagerSecret(ctx, p.Path, decrypt[i])
		} else {
			secret, err = s.ctl.GetSystemsManagerSecretKey(ctx, p.Path, p.Key, decrypt[i])
		}
		cancel()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get AWS SSM secret")
		}

		value, err := secretString(secret)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, Secret{Entry: p, Value: value})
	}
	return secrets, nil
}
