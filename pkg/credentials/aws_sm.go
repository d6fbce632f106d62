package credentials

import (
	"context"

	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/controllers/aws"
	"github.com/isometry/thanos-sidecar/pkg/utils"
)

const TypeSM = "aws_sm"

// SM reads AWS Secrets Manager secrets. A key selects one field of a JSON
// secret.
type SM struct {
	ctl *aws.Controller

	KeyEntry `mapstructure:",squash"`
	Keys     []KeyEntry `mapstructure:"keys"`
}

func newSM(ctx context.Context, params Params, m *manager) (*SM, error) {
	s := new(SM)
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

func (s *SM) Name() string {
	return TypeSM
}

func (s *SM) Fetch(ctx context.Context) ([]Secret, error) {
	keys, err := collectKeys(s.KeyEntry, s.Keys)
	if err != nil {
		return nil, err
	}

	secrets := make([]Secret, 0, len(keys))
	for _, p := range keys {
		ctx, cancel := utils.WithOptionalTimeout(ctx, p.Timeout)
		var secret any
		if p.Key == "" {
			secret, err = s.ctl.GetSecretManagerSecret(ctx, p.Path)
		} else {
			secret, err = s.ctl.GetSecretManagerSecretKey(ctx, p.Path, p.Key)
		}
		cancel()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get AWS Secrets Manager secret")
		}

		value, err := secretString(secret)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, Secret{Entry: p, Value: value})
	}
	return secrets, nil
}
