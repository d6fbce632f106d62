package k8s

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type Option = func(*Controller)

type Controller struct {
	client kubernetes.Interface

	Timeout time.Duration
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.Timeout = timeout
	}
}

// WithClient uses the given clientset instead of one built from kubeconfig.
func WithClient(client kubernetes.Interface) Option {
	return func(c *Controller) {
		c.client = client
	}
}

func NewController(opts ...Option) (*Controller, error) {
	_inst := new(Controller)
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.client != nil {
		return _inst, nil
	}

	kCfg, err := getKubeConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get kubeconfig")
	}

	kCfg.Timeout = _inst.Timeout
	clt, err := kubernetes.NewForConfig(kCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kubernetes client")
	}

	_inst.client = clt
	return _inst, nil
}

func (c *Controller) GetSecret(ctx context.Context, namespace, name string) (*v1.Secret, error) {
	secret, err := c.client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get secret")
	}
	return secret, nil
}

func (c *Controller) GetConfigMap(ctx context.Context, namespace, name string) (*v1.ConfigMap, error) {
	configMap, err := c.client.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get config map")
	}
	return configMap, nil
}

func getKubeConfig() (*rest.Config, error) {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" && os.Getenv("KUBERNETES_SERVICE_PORT") != "" {
		return rest.InClusterConfig()
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	kubeconfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	return kubeconfig.ClientConfig()
}
