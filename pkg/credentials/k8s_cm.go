package credentials

import (
	"context"

	"github.com/pkg/errors"

	"github.com/isometry/thanos-sidecar/pkg/utils"
)

const TypeK8sCM = "k8s_cm"

type K8sCM struct {
	k8sSource
}

func newK8sCM(params Params, m *manager) (*K8sCM, error) {
	k := new(K8sCM)
	if err := k.init(params, m); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *K8sCM) Name() string {
	return TypeK8sCM
}

func (k *K8sCM) Fetch(ctx context.Context) ([]Secret, error) {
	keys, namespaces, err := k.entries()
	if err != nil {
		return nil, err
	}

	secrets := make([]Secret, 0, len(keys))
	for i, p := range keys {
		ctx, cancel := utils.WithOptionalTimeout(ctx, p.Timeout)
		configMap, err := k.ctl.GetConfigMap(ctx, namespaces[i], p.Path)
		cancel()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get K8s config map")
		}

		if data, ok := configMap.Data[p.Key]; ok {
			secrets = append(secrets, Secret{Entry: p, Value: data})
			continue
		}
		if data, ok := configMap.BinaryData[p.Key]; ok {
			secrets = append(secrets, Secret{Entry: p, Value: string(data)})
			continue
		}
		return nil, errors.Errorf("config map %s/%s has no key %q", namespaces[i], p.Path, p.Key)
	}
	return secrets, nil
}
