package credentials

import (
	"context"

	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/controllers/k8s"
	"github.com/isometry/thanos-sidecar/pkg/utils"
)

const TypeK8sSecret = "k8s_secret"

// K8sEntry selects a key of a Secret or ConfigMap; path is the object name.
type K8sEntry struct {
	KeyEntry  `mapstructure:",squash"`
	Namespace string `mapstructure:"namespace"`
}

// k8sSource holds what the Secret and ConfigMap sources share. Keys without
// a namespace inherit the source's, which defaults to "default".
type k8sSource struct {
	ctl *k8s.Controller

	K8sEntry `mapstructure:",squash"`
	Keys     []K8sEntry `mapstructure:"keys"`
}

func (k *k8sSource) init(params Params, m *manager) error {
	if err := decodeParams(params, k); err != nil {
		return err
	}
	ctl, err := m.k8sController()
	if err != nil {
		return err
	}
	k.ctl = ctl
	return nil
}

func (k *k8sSource) entries() ([]KeyEntry, []string, error) {
	namespace := utils.CoalesceZero(k.Namespace, "default")

	entries := make([]KeyEntry, 0, len(k.Keys))
	namespaces := make([]string, 0, len(k.Keys)+1)
	if k.Path != "" {
		namespaces = append(namespaces, namespace)
	}
	for _, e := range k.Keys {
		entries = append(entries, e.KeyEntry)
		namespaces = append(namespaces, utils.CoalesceZero(e.Namespace, namespace))
	}

	keys, err := collectKeys(k.KeyEntry, entries)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range keys {
		if p.Key == "" {
			return nil, nil, errors.Errorf("%s: key is required", p.Path)
		}
	}
	return keys, namespaces, nil
}

type K8sSecret struct {
	k8sSource
}

func newK8sSecret(params Params, m *manager) (*K8sSecret, error) {
	k := new(K8sSecret)
	if err := k.init(params, m); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *K8sSecret) Name() string {
	return TypeK8sSecret
}

func (k *K8sSecret) Fetch(ctx context.Context) ([]Secret, error) {
	keys, namespaces, err := k.entries()
	if err != nil {
		return nil, err
	}

	secrets := make([]Secret, 0, len(keys))
	for i, p := range keys {
		ctx, cancel := utils.WithOptionalTimeout(ctx, p.Timeout)
		secret, err := k.ctl.GetSecret(ctx, namespaces[i], p.Path)
		cancel()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get K8s secret")
		}

		data, ok := secret.Data[p.Key]
		if !ok {
			return nil, errors.Errorf("secret %s/%s has no key %q", namespaces[i], p.Path, p.Key)
		}
		secrets = append(secrets, Secret{Entry: p, Value: string(data)})
	}
	return secrets, nil
}
