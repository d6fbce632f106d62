package credentials

import (
	"context"

	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/utils"
)

const TypeVault = "vault"

// Vault reads keys from a KV v1 or v2 secrets engine. An empty key exposes
// the whole secret as JSON.
type Vault struct {
	client *vault.Client

	Address string `mapstructure:"address"`
	Engine  string `mapstructure:"engine" default:"kv2"`
	Mount   string `mapstructure:"mount" default:"secret"`

	KeyEntry `mapstructure:",squash"`
	Keys     []KeyEntry `mapstructure:"keys"`
}

func newVault(params Params, m *manager) (*Vault, error) {
	v := new(Vault)
	if err := decodeParams(params, v); err != nil {
		return nil, err
	}
	switch v.Engine {
	case "kv", "kv-v1", "kvv1", "kv2", "kv-v2", "kvv2":
	default:
		return nil, errors.Errorf("unsupported Vault engine %q", v.Engine)
	}
	client, err := m.vaultClient(v.Address)
	if err != nil {
		return nil, err
	}
	v.client = client
	return v, nil
}

func (v *Vault) Name() string {
	return TypeVault
}

func (v *Vault) Fetch(ctx context.Context) ([]Secret, error) {
	keys, err := collectKeys(v.KeyEntry, v.Keys)
	if err != nil {
		return nil, err
	}

	secrets := make([]Secret, 0, len(keys))
	for _, p := range keys {
		value, err := v.fetch(ctx, p)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, Secret{Entry: p, Value: value})
	}
	return secrets, nil
}

func (v *Vault) fetch(ctx context.Context, p KeyEntry) (string, error) {
	ctx, cancel := utils.WithOptionalTimeout(ctx, p.Timeout)
	defer cancel()

	var (
		kvSecret *vault.KVSecret
		err      error
	)
	switch v.Engine {
	case "kv", "kv-v1", "kvv1":
		kvSecret, err = v.client.KVv1(v.Mount).Get(ctx, p.Path)
	default:
		kvSecret, err = v.client.KVv2(v.Mount).Get(ctx, p.Path)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to get Vault secret %s", p.Path)
	}
	if kvSecret == nil || kvSecret.Data == nil {
		return "", errors.Errorf("Vault secret %s has no data", p.Path)
	}

	if p.Key == "" {
		return secretString(kvSecret.Data)
	}
	value, ok := kvSecret.Data[p.Key]
	if !ok {
		return "", errors.Errorf("Vault secret %s has no key %q", p.Path, p.Key)
	}
	return secretString(value)
}
